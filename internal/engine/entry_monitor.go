package engine

import (
	"context"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/logger"
)

// entryTick is the entry-monitor job: it waits for the stop-limit entry to
// fill, and gives up once the entry timeout has elapsed.
func (e *Engine) entryTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseEntryPending {
		e.sched.Remove(JobEntryMonitor)
		return
	}
	s := e.state
	order, err := e.gw.QueryOrder(ctx, s.Symbol, s.EntryOrderID)
	if err != nil {
		logger.Warnf("entry monitor: query %d on %s failed: %v", s.EntryOrderID, s.Symbol, err)
		return
	}
	if order.Status.Filled() {
		e.onEntryFilled(ctx, order)
		return
	}
	if e.nowFn().Sub(s.EntryTime) < e.cfg.EntryTimeout {
		return
	}
	e.expireEntryLocked(ctx, order)
}

// expireEntryLocked cancels a timed-out entry. A fill revealed by the cancel
// (full or partial) is bracketed instead of dropped.
func (e *Engine) expireEntryLocked(ctx context.Context, before exchange.Order) {
	s := e.state
	cancelErr := e.gw.CancelOrder(ctx, s.Symbol, s.EntryOrderID)
	final, qerr := e.gw.QueryOrder(ctx, s.Symbol, s.EntryOrderID)
	if qerr != nil {
		if cancelErr != nil {
			logger.Errorf("entry monitor: cancel %d failed (%v) and re-query failed (%v), retrying", s.EntryOrderID, cancelErr, qerr)
			return
		}
		final = before
		final.Status = exchange.StatusCanceled
	}
	switch {
	case final.Status.Filled():
		e.onEntryFilled(ctx, final)
		return
	case cancelErr != nil && !final.Status.Dead():
		logger.Errorf("entry monitor: cancel %d on %s failed, order still %s, retrying: %v",
			s.EntryOrderID, s.Symbol, final.Status, cancelErr)
		return
	case final.ExecutedQty.IsPositive():
		logger.Warnf("entry monitor: %d partially filled %s/%s at timeout, bracketing executed size",
			s.EntryOrderID, final.ExecutedQty, final.OrigQty)
		e.onEntryFilled(ctx, final)
		return
	}

	waited := e.nowFn().Sub(s.EntryTime)
	e.notify.Send(e.msgs.entryTimedOut(s, waited))
	e.record(ctx, "entry_expired", s.Symbol, s.EntryOrderID, map[string]any{
		"side":   s.Side,
		"status": final.Status,
		"waited": waited.String(),
		"stop":   s.StopPrice.String(),
		"limit":  s.LimitPrice.String(),
		"qty":    s.Qty.String(),
		"cancel": errString(cancelErr),
	})
	e.metrics.entry("expired")
	e.sched.Remove(JobEntryMonitor)
	e.endLifecycle()
	logger.Infof("entry %d on %s cancelled by timeout after %s", s.EntryOrderID, s.Symbol, waited)
}

// onEntryFilled brackets the fill and hands over to the exit reconciler.
func (e *Engine) onEntryFilled(ctx context.Context, order exchange.Order) {
	price := order.AvgPrice
	qty := order.FilledQty()
	if !price.IsPositive() || !qty.IsPositive() {
		logger.Warnf("entry monitor: %d on %s reports %s without avg price/qty (%s/%s), retrying",
			order.OrderID, e.state.Symbol, order.Status, price, qty)
		return
	}
	if err := e.state.MarkFilled(order.Side, price, qty); err != nil {
		logger.Errorf("entry monitor: %v", err)
		return
	}
	e.metrics.entry("filled")
	e.sched.Remove(JobEntryMonitor)

	bracket, err := e.brackets.Place(ctx, Fill{
		Symbol: e.state.Symbol,
		Side:   e.state.Side,
		Price:  price,
		Qty:    qty,
	}, Risk{
		StopLossDistance: e.state.StopLossDistance,
		TakeProfitFactor: e.state.TakeProfitFactor,
	})
	if err != nil {
		e.notify.Send(e.msgs.bracketFailed(e.state, err))
		e.record(ctx, "bracket_failed", e.state.Symbol, e.state.EntryOrderID, map[string]any{
			"side":       e.state.Side,
			"fill_price": price.String(),
			"qty":        qty.String(),
			"error":      err.Error(),
		})
		e.metrics.bracketFailure()
		e.endLifecycle()
		return
	}
	if err := e.state.ArmExit(bracket, e.nowFn()); err != nil {
		logger.Errorf("entry monitor: %v", err)
		return
	}
	e.sched.Add(JobExitReconciler, e.cfg.ExitPoll, e.exitTick)
	e.notify.Send(e.msgs.entryFilled(e.state))
	e.record(ctx, "entry_filled", e.state.Symbol, e.state.EntryOrderID, map[string]any{
		"side":        e.state.Side,
		"fill_price":  price.String(),
		"qty":         qty.String(),
		"sl_price":    bracket.StopLossPrice.String(),
		"tp_price":    bracket.TakeProfitPrice.String(),
		"sl_order_id": bracket.StopLossOrderID,
		"tp_order_id": bracket.TakeProfitOrderID,
	})
	e.metrics.setPhase(e.state.Phase)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
