package binance

import (
	"context"
	"fmt"
	"strings"

	"bracketbot/internal/instrument"
	symbolpkg "bracketbot/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	res, err := c.client.NewPremiumIndexService().Symbol(sym).Do(ctx)
	if err != nil {
		return decimal.Zero, wrapErr("premium index", err)
	}
	for _, entry := range res {
		if entry != nil && strings.EqualFold(entry.Symbol, sym) {
			return parseDecimal(entry.MarkPrice), nil
		}
	}
	return decimal.Zero, fmt.Errorf("mark price not available for %s", sym)
}

func (c *Client) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	res, err := c.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return decimal.Zero, wrapErr("ticker price", err)
	}
	for _, entry := range res {
		if entry != nil && strings.EqualFold(entry.Symbol, sym) {
			return parseDecimal(entry.Price), nil
		}
	}
	return decimal.Zero, fmt.Errorf("last price not available for %s", sym)
}

// InstrumentSpecs reads tick and step sizes of every trading contract settled
// in the configured quote asset.
func (c *Client) InstrumentSpecs(ctx context.Context) ([]instrument.Spec, error) {
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrapErr("exchange info", err)
	}
	if info == nil {
		return nil, nil
	}
	out := make([]instrument.Spec, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.QuoteAsset, c.cfg.QuoteAsset) {
			continue
		}
		if s.Status != "" && !strings.EqualFold(s.Status, "TRADING") {
			continue
		}
		spec := instrument.Spec{Symbol: s.Symbol}
		if pf := s.PriceFilter(); pf != nil {
			spec.TickSize = pf.TickSize
		}
		if ls := s.LotSizeFilter(); ls != nil {
			spec.StepSize = ls.StepSize
		}
		out = append(out, spec)
	}
	return out, nil
}
