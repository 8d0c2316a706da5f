package engine

import (
	"context"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/logger"

	"github.com/shopspring/decimal"
)

type ExitKind string

const (
	ExitTakeProfit ExitKind = "TP"
	ExitStopLoss   ExitKind = "SL"
)

// ExitInput is everything ClassifyExit looks at.
type ExitInput struct {
	TakeProfitOrderID int64
	TakeProfitStatus  exchange.OrderStatus
	EntrySide         exchange.Side
	EntryTime         time.Time
	Trades            []exchange.Trade
}

// Exit is a classified position exit with its realized result.
type Exit struct {
	Kind       ExitKind
	PnL        decimal.Decimal
	Commission decimal.Decimal
}

// ClassifyExit decides whether the bracketed position has exited.
// A filled take-profit order wins and sums only its own fills. Otherwise any
// closing-side fill at or after EntryTime is a stop-loss exit, summed over
// every fill in that window. Fills of a take-profit that is still working
// (partially filled) never count as a stop-loss.
func ClassifyExit(in ExitInput) (Exit, bool) {
	if in.TakeProfitStatus.Filled() {
		out := Exit{Kind: ExitTakeProfit}
		for _, t := range in.Trades {
			if t.OrderID == in.TakeProfitOrderID {
				out.PnL = out.PnL.Add(t.RealizedPnL)
				out.Commission = out.Commission.Add(t.Commission)
			}
		}
		return out, true
	}
	closing := in.EntrySide.Opposite()
	tpWorking := !in.TakeProfitStatus.Dead()
	found := false
	out := Exit{Kind: ExitStopLoss}
	for _, t := range in.Trades {
		if t.Time.Before(in.EntryTime) {
			continue
		}
		if t.Side == closing && !(tpWorking && t.OrderID == in.TakeProfitOrderID) {
			found = true
		}
		out.PnL = out.PnL.Add(t.RealizedPnL)
		out.Commission = out.Commission.Add(t.Commission)
	}
	if !found {
		return Exit{}, false
	}
	return out, true
}

// exitTick is the exit-reconciler job.
func (e *Engine) exitTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseExitPending {
		e.sched.Remove(JobExitReconciler)
		return
	}
	e.reconcileLocked(ctx)
}

// reconcileLocked runs one classification pass and, on exit, reports and
// ends the lifecycle. Query failures leave everything untouched for the next
// tick. Callers hold e.mu.
func (e *Engine) reconcileLocked(ctx context.Context) bool {
	s := e.state
	tp, err := e.gw.QueryOrder(ctx, s.Symbol, s.TakeProfitOrderID)
	if err != nil {
		logger.Warnf("exit reconciler: query tp %d on %s failed: %v", s.TakeProfitOrderID, s.Symbol, err)
		return false
	}
	trades, err := e.gw.GetAccountTrades(ctx, s.Symbol)
	if err != nil {
		logger.Warnf("exit reconciler: trade history on %s failed: %v", s.Symbol, err)
		return false
	}
	exit, ok := ClassifyExit(ExitInput{
		TakeProfitOrderID: s.TakeProfitOrderID,
		TakeProfitStatus:  tp.Status,
		EntrySide:         s.Side,
		EntryTime:         s.EntryTime,
		Trades:            trades,
	})
	if !ok {
		logger.Debugf("exit reconciler: %s still open (tp=%s)", s.Symbol, tp.Status)
		return false
	}
	// the leftover legs are only cancelled once the account is flat.
	pos, err := e.gw.GetOpenPosition(ctx, s.Symbol)
	if err != nil {
		logger.Warnf("exit reconciler: read position %s failed: %v", s.Symbol, err)
		return false
	}
	if pos != nil && !pos.Amount.IsZero() {
		logger.Warnf("exit reconciler: %s looks like a %s exit but %s is still open (tp=%s), waiting",
			s.Symbol, exit.Kind, pos.Amount, tp.Status)
		return false
	}

	balance := e.walletBalance(ctx)
	e.notify.Send(e.msgs.exitReport(s, exit, balance, e.cfg.QuoteAsset))
	e.record(ctx, "exit_"+string(exit.Kind), s.Symbol, s.TakeProfitOrderID, map[string]any{
		"side":       s.Side,
		"fill_price": s.FillPrice.String(),
		"qty":        s.Qty.String(),
		"tp_price":   s.TakeProfitPrice.String(),
		"sl_price":   s.StopLossPrice.String(),
		"pnl":        exit.PnL.String(),
		"commission": exit.Commission.String(),
		"balance":    balance.String(),
	})
	e.metrics.exit(exit)
	if err := e.gw.CancelAllOpenOrders(ctx, s.Symbol); err != nil {
		logger.Warnf("exit reconciler: cancel leftover orders on %s failed: %v", s.Symbol, err)
	}
	e.sched.Remove(JobExitReconciler)
	e.endLifecycle()
	logger.Infof("exit reconciled symbol=%s kind=%s pnl=%s commission=%s", s.Symbol, exit.Kind, exit.PnL, exit.Commission)
	return true
}

// walletBalance returns the quote-asset wallet balance, zero when unknown.
func (e *Engine) walletBalance(ctx context.Context) decimal.Decimal {
	balances, err := e.gw.GetBalances(ctx)
	if err != nil {
		logger.Warnf("balance read failed: %v", err)
		return decimal.Zero
	}
	b, _ := exchange.FindBalance(balances, e.cfg.QuoteAsset)
	return b.Balance
}
