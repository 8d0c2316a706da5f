package engine

import (
	"context"
	"fmt"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/logger"
	"bracketbot/internal/pkg/quantize"

	"github.com/shopspring/decimal"
)

// Fill is the executed entry a bracket protects.
type Fill struct {
	Symbol string
	Side   exchange.Side
	Price  decimal.Decimal
	Qty    decimal.Decimal
}

// Risk holds the bracket geometry: stop distance and reward multiple.
type Risk struct {
	StopLossDistance decimal.Decimal
	TakeProfitFactor decimal.Decimal
}

type Bracket struct {
	StopLossOrderID   int64
	TakeProfitOrderID int64
	StopLossPrice     decimal.Decimal
	TakeProfitPrice   decimal.Decimal
}

// ComputeLevels places the stop d away against the position and the target
// d*f away in its favour.
func ComputeLevels(side exchange.Side, fill, d, f decimal.Decimal) (sl, tp decimal.Decimal) {
	reward := d.Mul(f)
	if side == exchange.SideSell {
		return fill.Add(d), fill.Sub(reward)
	}
	return fill.Sub(d), fill.Add(reward)
}

// BracketManager places the stop-loss and take-profit legs for a fill. If
// either leg fails the position is flattened through the guard.
type BracketManager struct {
	gw    exchange.Gateway
	specs SpecSource
	guard *CrashRecoveryGuard
}

func (m *BracketManager) Place(ctx context.Context, fill Fill, risk Risk) (Bracket, error) {
	spec := lookupSpec(m.specs, fill.Symbol)
	sl, tp := ComputeLevels(fill.Side, fill.Price, risk.StopLossDistance, risk.TakeProfitFactor)
	b := Bracket{
		StopLossPrice:   quantize.Decimal(sl, spec.TickSize),
		TakeProfitPrice: quantize.Decimal(tp, spec.TickSize),
	}
	closing := fill.Side.Opposite()

	slID, err := m.gw.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        fill.Symbol,
		Side:          closing,
		Type:          exchange.OrderTypeStopMarket,
		StopPrice:     b.StopLossPrice,
		ClosePosition: true,
	})
	if err == nil && slID == 0 {
		err = exchange.ErrMissingOrderID
	}
	if err != nil {
		return b, m.abort(ctx, fill.Symbol, fmt.Errorf("stop-loss leg: %w", err))
	}
	b.StopLossOrderID = slID

	tpID, err := m.gw.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      fill.Symbol,
		Side:        closing,
		Type:        exchange.OrderTypeLimit,
		TimeInForce: exchange.TimeInForceGTC,
		Quantity:    quantize.Decimal(fill.Qty, spec.StepSize),
		Price:       b.TakeProfitPrice,
		ReduceOnly:  true,
	})
	if err == nil && tpID == 0 {
		err = exchange.ErrMissingOrderID
	}
	if err != nil {
		return b, m.abort(ctx, fill.Symbol, fmt.Errorf("take-profit leg: %w", err))
	}
	b.TakeProfitOrderID = tpID
	logger.Infof("bracket armed symbol=%s sl=%s(%d) tp=%s(%d)", fill.Symbol, b.StopLossPrice, slID, b.TakeProfitPrice, tpID)
	return b, nil
}

func (m *BracketManager) abort(ctx context.Context, symbol string, cause error) error {
	logger.Errorf("bracket failed symbol=%s, forcing close: %v", symbol, cause)
	if _, gerr := m.guard.Run(ctx, symbol); gerr != nil {
		return fmt.Errorf("%w; force close failed: %v", cause, gerr)
	}
	return cause
}
