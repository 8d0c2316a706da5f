package engine

import (
	"context"
	"fmt"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/gateway/notifier"
	"bracketbot/internal/logger"
	"bracketbot/internal/pkg/quantize"
)

// CrashRecoveryGuard flattens whatever position the exchange reports,
// regardless of local state.
type CrashRecoveryGuard struct {
	gw     exchange.Gateway
	specs  SpecSource
	notify *notifier.BestEffort
	msgs   formatter
}

// Run cancels every open order on symbol and market-closes any open
// position. closed reports whether a close order was accepted.
func (g *CrashRecoveryGuard) Run(ctx context.Context, symbol string) (bool, error) {
	if err := g.gw.CancelAllOpenOrders(ctx, symbol); err != nil {
		logger.Warnf("guard: cancel open orders on %s failed, continuing: %v", symbol, err)
	}
	pos, err := g.gw.GetOpenPosition(ctx, symbol)
	if err != nil {
		g.notify.Send(g.msgs.forceCloseFailed(symbol, err))
		return false, fmt.Errorf("guard: read position %s: %w", symbol, err)
	}
	if pos == nil || pos.Amount.IsZero() {
		logger.Infof("guard: %s is flat", symbol)
		return false, nil
	}
	g.notify.Send(g.msgs.unprotected(*pos))
	if _, err := closePosition(ctx, g.gw, g.specs, symbol, *pos); err != nil {
		g.notify.Send(g.msgs.forceCloseFailed(symbol, err))
		return false, fmt.Errorf("guard: close %s: %w", symbol, err)
	}
	logger.Warnf("guard: force-closed %s amount=%s", symbol, pos.Amount)
	return true, nil
}

// closePosition submits one reduce-only market order for the full size.
func closePosition(ctx context.Context, gw exchange.Gateway, specs SpecSource, symbol string, pos exchange.Position) (int64, error) {
	spec := lookupSpec(specs, symbol)
	qty := quantize.Decimal(pos.Size(), spec.StepSize)
	if !qty.IsPositive() {
		return 0, fmt.Errorf("position size %s rounds to zero at step %s", pos.Size(), spec.StepSize)
	}
	id, err := gw.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     symbol,
		Side:       pos.ClosingSide(),
		Type:       exchange.OrderTypeMarket,
		Quantity:   qty,
		ReduceOnly: true,
	})
	if err == nil && id == 0 {
		err = exchange.ErrMissingOrderID
	}
	return id, err
}
