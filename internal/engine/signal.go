package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/logger"
	"bracketbot/internal/pkg/quantize"
	symbolpkg "bracketbot/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

// SideClose is the signal side that flattens the open position.
const SideClose = "CLOSE"

// Signal is an inbound trade instruction.
type Signal struct {
	Symbol           string
	Side             string
	Entry            decimal.Decimal
	StopLossDistance decimal.Decimal
	TakeProfitFactor decimal.Decimal
	RiskPercent      decimal.Decimal
	LimitOffset      decimal.Decimal
}

type SignalStatus string

const (
	StatusPlaced   SignalStatus = "placed"
	StatusRejected SignalStatus = "rejected"
	StatusClosed   SignalStatus = "closed"
	StatusIgnored  SignalStatus = "ignored"
	StatusFailed   SignalStatus = "failed"
)

// SignalResult is the caller-facing outcome. Message is human readable and
// never carries raw exchange errors.
type SignalResult struct {
	Status     SignalStatus    `json:"status"`
	Message    string          `json:"message"`
	OrderID    int64           `json:"order_id,omitempty"`
	Qty        decimal.Decimal `json:"qty"`
	StopPrice  decimal.Decimal `json:"stop_price"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	Leverage   int             `json:"leverage,omitempty"`
}

func result(status SignalStatus, msg string) SignalResult {
	return SignalResult{Status: status, Message: msg}
}

// HandleSignal applies the intake rules: one position at a time, CLOSE
// flattens, everything else opens a risk-sized stop-limit entry.
func (e *Engine) HandleSignal(ctx context.Context, sig Signal) SignalResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := e.handleSignalLocked(ctx, sig)
	e.metrics.signal(res.Status)
	logger.Infof("signal symbol=%s side=%s -> %s: %s", sig.Symbol, sig.Side, res.Status, res.Message)
	return res
}

func (e *Engine) handleSignalLocked(ctx context.Context, sig Signal) SignalResult {
	sig.Symbol = symbolpkg.Binance.ToExchange(sig.Symbol)
	sig.Side = strings.ToUpper(strings.TrimSpace(sig.Side))
	if sig.Symbol == "" {
		return result(StatusRejected, "symbol is required")
	}

	pos, err := e.gw.GetOpenPosition(ctx, sig.Symbol)
	if err != nil {
		logger.Errorf("signal: read position %s: %v", sig.Symbol, err)
		return result(StatusFailed, "exchange unavailable")
	}
	if pos != nil {
		if sig.Side != SideClose {
			return result(StatusRejected, "a position is already open, only CLOSE is accepted")
		}
		return e.closeOnSignal(ctx, sig.Symbol, *pos)
	}

	if e.state.Phase == PhaseExitPending && e.state.Symbol == sig.Symbol {
		if !e.reconcileLocked(ctx) {
			logger.Warnf("signal: %s is flat but the exit could not be classified, discarding lifecycle", sig.Symbol)
			e.dropLifecycle()
		}
	}
	if sig.Side == SideClose {
		return result(StatusIgnored, "no open position to close")
	}
	if err := validateSignal(sig); err != nil {
		return result(StatusRejected, err.Error())
	}
	if e.state.Active() && e.state.Symbol != sig.Symbol {
		return result(StatusRejected, fmt.Sprintf("a %s lifecycle is still active", e.state.Symbol))
	}

	if err := e.gw.CancelAllOpenOrders(ctx, sig.Symbol); err != nil {
		logger.Errorf("signal: cancel open orders %s: %v", sig.Symbol, err)
		return result(StatusFailed, "could not cancel open orders")
	}
	if e.state.Phase == PhaseEntryPending {
		logger.Warnf("signal: superseding pending entry %d on %s", e.state.EntryOrderID, e.state.Symbol)
		e.record(ctx, "entry_superseded", e.state.Symbol, e.state.EntryOrderID, nil)
		e.dropLifecycle()
	}

	balances, err := e.gw.GetBalances(ctx)
	if err != nil {
		logger.Errorf("signal: read balance: %v", err)
		return result(StatusFailed, "exchange unavailable")
	}
	bal, _ := exchange.FindBalance(balances, e.cfg.QuoteAsset)
	available := bal.AvailableBalance
	if !available.IsPositive() {
		return result(StatusRejected, fmt.Sprintf("no available %s balance", e.cfg.QuoteAsset))
	}

	spec := lookupSpec(e.specs, sig.Symbol)
	plan := e.sizeEntry(sig, available, spec.StepSize, spec.TickSize, spec.MaxLeverage)
	if !plan.Qty.IsPositive() {
		return result(StatusRejected, "position size rounds to zero")
	}

	if err := e.gw.SetLeverage(ctx, sig.Symbol, plan.Leverage); err != nil {
		logger.Errorf("signal: set leverage %dx on %s: %v", plan.Leverage, sig.Symbol, err)
		return result(StatusFailed, "could not set leverage")
	}

	order := EntryOrder{
		Symbol:     sig.Symbol,
		Side:       exchange.Side(sig.Side),
		Qty:        plan.Qty,
		StopPrice:  plan.StopPrice,
		LimitPrice: plan.LimitPrice,
	}
	orderID, err := e.placer.PlaceStopEntry(ctx, order)
	if err != nil {
		logger.Errorf("signal: %v", err)
		e.metrics.entry("place_failed")
		return result(StatusFailed, "could not place the stop-limit order")
	}

	if err := e.state.BeginEntry(EntryParams{
		Symbol:           sig.Symbol,
		Side:             order.Side,
		OrderID:          orderID,
		Qty:              plan.Qty,
		StopPrice:        plan.StopPrice,
		LimitPrice:       plan.LimitPrice,
		StopLossDistance: sig.StopLossDistance,
		TakeProfitFactor: sig.TakeProfitFactor,
		Leverage:         plan.Leverage,
		RiskPercent:      sig.RiskPercent,
	}, e.nowFn()); err != nil {
		logger.Errorf("signal: %v", err)
		return result(StatusFailed, "internal state error")
	}
	e.sched.Add(JobEntryMonitor, e.cfg.EntryPoll, e.entryTick)
	e.metrics.entry("placed")
	e.metrics.setPhase(e.state.Phase)
	e.record(ctx, "entry_placed", sig.Symbol, orderID, map[string]any{
		"side":         sig.Side,
		"entry":        sig.Entry.String(),
		"qty":          plan.Qty.String(),
		"stop":         plan.StopPrice.String(),
		"limit":        plan.LimitPrice.String(),
		"leverage":     plan.Leverage,
		"risk_percent": sig.RiskPercent.String(),
		"sl_distance":  sig.StopLossDistance.String(),
		"tp_factor":    sig.TakeProfitFactor.String(),
	})
	return SignalResult{
		Status:     StatusPlaced,
		Message:    "stop-limit order placed",
		OrderID:    orderID,
		Qty:        plan.Qty,
		StopPrice:  plan.StopPrice,
		LimitPrice: plan.LimitPrice,
		Leverage:   plan.Leverage,
	}
}

func validateSignal(sig Signal) error {
	if sig.Side != string(exchange.SideBuy) && sig.Side != string(exchange.SideSell) {
		return fmt.Errorf("side must be BUY, SELL or CLOSE")
	}
	checks := []struct {
		name string
		v    decimal.Decimal
	}{
		{"entry", sig.Entry},
		{"sl_distance", sig.StopLossDistance},
		{"tp_factor", sig.TakeProfitFactor},
		{"risk_percent", sig.RiskPercent},
	}
	for _, c := range checks {
		if !c.v.IsPositive() {
			return fmt.Errorf("%s must be > 0", c.name)
		}
	}
	if sig.RiskPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("risk_percent must be <= 100")
	}
	if sig.LimitOffset.IsNegative() {
		return errors.New("limit_offset must be >= 0")
	}
	return nil
}

// entryPlan is the sized and priced entry derived from a signal.
type entryPlan struct {
	Qty        decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
	Leverage   int
}

// sizeEntry risks riskPercent of the available balance over the stop
// distance, and splits the limit offset between trigger and limit price.
func (e *Engine) sizeEntry(sig Signal, available decimal.Decimal, step, tick string, specMaxLev int) entryPlan {
	hundred := decimal.NewFromInt(100)
	risk := available.Mul(sig.RiskPercent).Div(hundred)
	qty := quantize.Decimal(risk.Div(sig.StopLossDistance), step)

	maxLev := e.cfg.MaxLeverage
	if specMaxLev > 0 && specMaxLev < maxLev {
		maxLev = specMaxLev
	}
	lev := int(sig.Entry.Mul(qty).Div(available).Ceil().IntPart())
	if lev > maxLev {
		lev = maxLev
	}
	if lev < 1 {
		lev = 1
	}

	ratio := e.cfg.StopOffsetRatio
	stopOffset := sig.LimitOffset.Mul(ratio)
	limitOffset := sig.LimitOffset.Mul(decimal.NewFromInt(1).Sub(ratio))
	var stop, limit decimal.Decimal
	if sig.Side == string(exchange.SideSell) {
		stop = sig.Entry.Sub(stopOffset)
		limit = stop.Sub(limitOffset)
	} else {
		stop = sig.Entry.Add(stopOffset)
		limit = stop.Add(limitOffset)
	}
	return entryPlan{
		Qty:        qty,
		StopPrice:  quantize.Decimal(stop, tick),
		LimitPrice: quantize.Decimal(limit, tick),
		Leverage:   lev,
	}
}

// closeOnSignal flattens the open position, removes its bracket and ends any
// local lifecycle on the symbol.
func (e *Engine) closeOnSignal(ctx context.Context, symbol string, pos exchange.Position) SignalResult {
	orderID, err := closePosition(ctx, e.gw, e.specs, symbol, pos)
	if err != nil {
		logger.Errorf("signal: close %s: %v", symbol, err)
		e.notify.Send(e.msgs.forceCloseFailed(symbol, err))
		return result(StatusFailed, "could not close the position")
	}
	if err := e.gw.CancelAllOpenOrders(ctx, symbol); err != nil {
		logger.Warnf("signal: cancel bracket on %s failed: %v", symbol, err)
	}
	if e.state.Active() && e.state.Symbol == symbol {
		e.dropLifecycle()
	}
	e.notify.Send(e.msgs.manualClose(pos, orderID))
	e.metrics.manualClose()
	e.record(ctx, "manual_close", symbol, orderID, map[string]any{
		"amount":      pos.Amount.String(),
		"entry_price": pos.EntryPrice.String(),
	})
	return SignalResult{Status: StatusClosed, Message: "position closed", OrderID: orderID, Qty: pos.Size()}
}
