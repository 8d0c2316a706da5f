package engine

import (
	"context"
	"testing"
	"time"

	"bracketbot/internal/gateway/exchange"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestHandleSignalPlacesRiskSizedStopLimit(t *testing.T) {
	h := newHarness(t)

	res := h.eng.HandleSignal(context.Background(), buySignal())

	require.Equal(t, StatusPlaced, res.Status, res.Message)
	assertDec(t, "0.05", res.Qty)
	assertDec(t, "50024", res.StopPrice)
	assertDec(t, "50080", res.LimitPrice)
	assert.Equal(t, 3, res.Leverage)

	entries := h.ex.placedOfType(exchange.OrderTypeStop)
	require.Len(t, entries, 1)
	req := entries[0]
	assert.Equal(t, exchange.SideBuy, req.Side)
	assert.Equal(t, exchange.TimeInForceGTC, req.TimeInForce)
	assertDec(t, "0.05", req.Quantity)
	assertDec(t, "50024", req.StopPrice)
	assertDec(t, "50080", req.Price)
	assert.False(t, req.ReduceOnly)

	assert.Equal(t, []int{3}, h.ex.leverage)
	assert.Equal(t, 1, h.ex.cancelAll, "stale orders are cancelled before a new entry")

	st := h.eng.State()
	assert.Equal(t, PhaseEntryPending, st.Phase)
	assert.Equal(t, res.OrderID, st.EntryOrderID)
	assert.Equal(t, h.clock.now, st.EntryTime)
	assert.True(t, h.sched.Has(JobEntryMonitor))
	iv, _ := h.sched.Interval(JobEntryMonitor)
	assert.Equal(t, 5*time.Second, iv)
	assert.Equal(t, 1, h.notify.count("Stop-limit placed"))
	assert.Equal(t, []string{"entry_placed"}, h.journal.kinds())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.signals.WithLabelValues("placed")))
}

func TestHandleSignalSellPricesBelowEntry(t *testing.T) {
	h := newHarness(t)
	sig := buySignal()
	sig.Side = "sell"

	res := h.eng.HandleSignal(context.Background(), sig)

	require.Equal(t, StatusPlaced, res.Status, res.Message)
	assertDec(t, "49976", res.StopPrice)
	assertDec(t, "49920", res.LimitPrice)
	assert.Equal(t, exchange.SideSell, h.eng.State().Side)
}

func TestHandleSignalCapsLeverage(t *testing.T) {
	h := newHarness(t)
	sig := buySignal()
	sig.StopLossDistance = d("1")

	res := h.eng.HandleSignal(context.Background(), sig)

	require.Equal(t, StatusPlaced, res.Status, res.Message)
	assertDec(t, "10", res.Qty)
	assert.Equal(t, 125, res.Leverage)
}

func TestHandleSignalRejectsWhilePositionOpen(t *testing.T) {
	h := newHarness(t)
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("0.05")}

	res := h.eng.HandleSignal(context.Background(), buySignal())

	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Message, "only CLOSE")
	assert.Empty(t, h.ex.placed)
	assert.Empty(t, h.ex.leverage)
	assert.Zero(t, h.ex.cancelAll)
	assert.Equal(t, PhaseIdle, h.eng.State().Phase)
}

func TestHandleSignalCloseFlattensPosition(t *testing.T) {
	h := newHarness(t)
	h.armBracket(t)
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("-0.010")}
	cancelsBefore := h.ex.cancelAll

	res := h.eng.HandleSignal(context.Background(), Signal{Symbol: "BTCUSDT", Side: "close"})

	require.Equal(t, StatusClosed, res.Status, res.Message)
	markets := h.ex.placedOfType(exchange.OrderTypeMarket)
	require.Len(t, markets, 1)
	assert.Equal(t, exchange.SideBuy, markets[0].Side)
	assert.True(t, markets[0].ReduceOnly)
	assertDec(t, "0.01", markets[0].Quantity)
	assert.Equal(t, cancelsBefore+1, h.ex.cancelAll)
	assert.Equal(t, PhaseIdle, h.eng.State().Phase)
	assert.False(t, h.sched.Has(JobEntryMonitor))
	assert.False(t, h.sched.Has(JobExitReconciler))
	assert.Equal(t, 1, h.notify.count("closed on CLOSE signal"))
}

func TestHandleSignalCloseWhenFlatIsIgnored(t *testing.T) {
	h := newHarness(t)

	res := h.eng.HandleSignal(context.Background(), Signal{Symbol: "BTCUSDT", Side: "CLOSE"})

	assert.Equal(t, StatusIgnored, res.Status)
	assert.Empty(t, h.ex.placed)
}

func TestHandleSignalValidation(t *testing.T) {
	cases := map[string]func(s *Signal){
		"side":         func(s *Signal) { s.Side = "HOLD" },
		"entry":        func(s *Signal) { s.Entry = decimal.Zero },
		"sl_distance":  func(s *Signal) { s.StopLossDistance = d("-1") },
		"tp_factor":    func(s *Signal) { s.TakeProfitFactor = decimal.Zero },
		"risk_percent": func(s *Signal) { s.RiskPercent = decimal.Zero },
		"risk cap":     func(s *Signal) { s.RiskPercent = d("150") },
		"offset":       func(s *Signal) { s.LimitOffset = d("-5") },
		"tiny size":    func(s *Signal) { s.RiskPercent = d("0.0001") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			sig := buySignal()
			mutate(&sig)

			res := h.eng.HandleSignal(context.Background(), sig)

			assert.Equal(t, StatusRejected, res.Status, res.Message)
			assert.Empty(t, h.ex.placed)
			assert.Equal(t, PhaseIdle, h.eng.State().Phase)
		})
	}
}

func TestHandleSignalExchangeFailures(t *testing.T) {
	t.Run("position read", func(t *testing.T) {
		h := newHarness(t)
		h.ex.positionErr = errExchangeDown
		res := h.eng.HandleSignal(context.Background(), buySignal())
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, "exchange unavailable", res.Message)
	})
	t.Run("no balance", func(t *testing.T) {
		h := newHarness(t)
		h.ex.balances = nil
		res := h.eng.HandleSignal(context.Background(), buySignal())
		assert.Equal(t, StatusRejected, res.Status)
	})
	t.Run("leverage", func(t *testing.T) {
		h := newHarness(t)
		h.ex.leverageErr = &exchange.APIError{Code: -4028, Message: "Leverage not valid"}
		res := h.eng.HandleSignal(context.Background(), buySignal())
		assert.Equal(t, StatusFailed, res.Status)
		assert.NotContains(t, res.Message, "-4028", "raw exchange errors stay in the logs")
		assert.Empty(t, h.ex.placed)
	})
	t.Run("placement exhausted", func(t *testing.T) {
		h := newHarness(t)
		h.ex.placeResults = []placeResult{{err: errExchangeDown}, {err: errExchangeDown}, {err: errExchangeDown}}
		res := h.eng.HandleSignal(context.Background(), buySignal())
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, "could not place the stop-limit order", res.Message)
		assert.Equal(t, PhaseIdle, h.eng.State().Phase)
		assert.False(t, h.sched.Has(JobEntryMonitor))
	})
}

func TestHandleSignalReconcilesUnreportedExitFirst(t *testing.T) {
	h := newHarness(t)
	st := h.armBracket(t)
	h.ex.setOrder(st.TakeProfitOrderID, func(o *exchange.Order) { o.Status = exchange.StatusFilled })
	h.ex.trades = []exchange.Trade{
		{OrderID: st.TakeProfitOrderID, Side: exchange.SideSell, Time: h.clock.now.Add(time.Minute), RealizedPnL: d("2"), Commission: d("0.1")},
	}

	res := h.eng.HandleSignal(context.Background(), buySignal())

	require.Equal(t, StatusPlaced, res.Status, res.Message)
	assert.Equal(t, 1, h.notify.count("Take profit hit"))
	assert.Equal(t, []string{"entry_placed", "entry_filled", "exit_TP", "entry_placed"}, h.journal.kinds())
	assert.Equal(t, PhaseEntryPending, h.eng.State().Phase)
	assert.False(t, h.sched.Has(JobExitReconciler))
}

func TestHandleSignalSupersedesPendingEntry(t *testing.T) {
	h := newHarness(t)
	first := h.placeEntry(t)

	res := h.eng.HandleSignal(context.Background(), buySignal())

	require.Equal(t, StatusPlaced, res.Status)
	assert.NotEqual(t, first, res.OrderID)
	assert.Equal(t, res.OrderID, h.eng.State().EntryOrderID)
	assert.Contains(t, h.journal.kinds(), "entry_superseded")
	assert.True(t, h.sched.Has(JobEntryMonitor))
	assert.Equal(t, 2, h.sched.Registrations(JobEntryMonitor))
}
