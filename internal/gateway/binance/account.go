package binance

import (
	"context"
	"sort"
	"strings"
	"time"

	"bracketbot/internal/gateway/exchange"
	symbolpkg "bracketbot/internal/pkg/symbol"
)

const tradeHistoryLimit = 500

// GetOpenPosition returns the one-way-mode position on symbol, nil when flat.
func (c *Client) GetOpenPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	rows, err := c.client.NewGetPositionRiskService().Symbol(sym).Do(ctx)
	if err != nil {
		return nil, wrapErr("position risk", err)
	}
	for _, row := range rows {
		if row == nil || !strings.EqualFold(row.Symbol, sym) {
			continue
		}
		amt := parseDecimal(row.PositionAmt)
		if amt.IsZero() {
			continue
		}
		return &exchange.Position{
			Symbol:     row.Symbol,
			Amount:     amt,
			EntryPrice: parseDecimal(row.EntryPrice),
		}, nil
	}
	return nil, nil
}

// GetAccountTrades returns the most recent fills on symbol, oldest first.
func (c *Client) GetAccountTrades(ctx context.Context, symbol string) ([]exchange.Trade, error) {
	rows, err := c.client.NewListAccountTradeService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Limit(tradeHistoryLimit).
		Do(ctx)
	if err != nil {
		return nil, wrapErr("account trades", err)
	}
	out := make([]exchange.Trade, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, exchange.Trade{
			OrderID:     row.OrderID,
			Side:        exchange.Side(row.Side),
			Time:        time.UnixMilli(row.Time),
			Price:       parseDecimal(row.Price),
			Qty:         parseDecimal(row.Quantity),
			RealizedPnL: parseDecimal(row.RealizedPnl),
			Commission:  parseDecimal(row.Commission),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (c *Client) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	rows, err := c.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, wrapErr("balance", err)
	}
	out := make([]exchange.Balance, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, exchange.Balance{
			Asset:            row.Asset,
			Balance:          parseDecimal(row.Balance),
			AvailableBalance: parseDecimal(row.AvailableBalance),
		})
	}
	return out, nil
}
