package engine

import (
	"context"
	"testing"
	"time"

	"bracketbot/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardClosesUnprotectedPosition(t *testing.T) {
	h := newHarness(t)
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("0.0504"), EntryPrice: d("50000")}

	require.NoError(t, h.eng.RunGuard(context.Background(), []string{"BTCUSDT"}))

	require.Len(t, h.ex.placed, 1, "exactly one market order")
	req := h.ex.placed[0]
	assert.Equal(t, exchange.OrderTypeMarket, req.Type)
	assert.Equal(t, exchange.SideSell, req.Side)
	assert.True(t, req.ReduceOnly)
	assertDec(t, "0.05", req.Quantity)
	assert.Len(t, h.notify.texts(), 1, "exactly one notification")
	assert.Equal(t, 1, h.notify.count("Unprotected position found"))
	assert.Equal(t, 1, h.ex.cancelAll)
	assert.Equal(t, []string{"guard_close"}, h.journal.kinds())
}

func TestGuardFlatIsNoop(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.eng.RunGuard(context.Background(), []string{"BTCUSDT", "ETHUSDT"}))

	assert.Empty(t, h.ex.placed)
	assert.Empty(t, h.notify.texts())
	assert.Equal(t, 2, h.ex.cancelAll)
}

func TestGuardContinuesWhenCancelAllFails(t *testing.T) {
	h := newHarness(t)
	h.ex.cancelAllErr = errExchangeDown
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("-0.2")}

	closed, err := h.eng.guard.Run(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.True(t, closed)
	require.Len(t, h.ex.placed, 1)
	assert.Equal(t, exchange.SideBuy, h.ex.placed[0].Side)
}

func TestGuardReportsFailedClose(t *testing.T) {
	h := newHarness(t)
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("0.05")}
	h.ex.placeResults = []placeResult{{err: errExchangeDown}}

	err := h.eng.RunGuard(context.Background(), []string{"BTCUSDT"})

	require.Error(t, err)
	assert.Equal(t, 1, h.notify.count("Unprotected position found"))
	assert.Equal(t, 1, h.notify.count("Force close failed"))
	assert.Empty(t, h.journal.kinds())
}

func TestGuardPositionReadError(t *testing.T) {
	h := newHarness(t)
	h.ex.positionErr = errExchangeDown

	closed, err := h.eng.guard.Run(context.Background(), "BTCUSDT")

	assert.Error(t, err)
	assert.False(t, closed)
	assert.Empty(t, h.ex.placed)
	assert.Equal(t, 1, h.notify.count("Force close failed"))
}

func TestSafetyCloseKeepsLifecycleWhenGuardFails(t *testing.T) {
	h := newHarness(t)
	h.armBracket(t)
	h.ex.positionErr = errExchangeDown

	closed, err := h.eng.SafetyClose(context.Background(), "BTCUSDT")

	require.Error(t, err)
	assert.False(t, closed)
	assert.Equal(t, PhaseExitPending, h.eng.State().Phase)
	assert.True(t, h.sched.Has(JobExitReconciler))
	assert.Equal(t, 1, h.notify.count("Force close failed"))
	assert.NotContains(t, h.journal.kinds(), "guard_close")
}

func TestSafetyCloseResetsLifecycle(t *testing.T) {
	h := newHarness(t)
	h.armBracket(t)
	h.ex.position = &exchange.Position{Symbol: "BTCUSDT", Amount: d("0.05")}

	closed, err := h.eng.SafetyClose(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, PhaseIdle, h.eng.State().Phase)
	assert.False(t, h.sched.Has(JobExitReconciler))
	assert.Len(t, h.ex.placedOfType(exchange.OrderTypeMarket), 1)
	assert.Contains(t, h.journal.kinds(), "guard_close")
}

func TestPlacerRetriesWithinBudget(t *testing.T) {
	h := newHarness(t)
	h.ex.placeResults = []placeResult{{err: errExchangeDown}, {noID: true}}

	res := h.eng.HandleSignal(context.Background(), buySignal())

	require.Equal(t, StatusPlaced, res.Status)
	assert.Len(t, h.ex.placedOfType(exchange.OrderTypeStop), 3)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.sleeps)
	assert.Equal(t, 2, h.notify.count("attempt"))
}

func TestPlacerExhaustsAttempts(t *testing.T) {
	h := newHarness(t)
	h.ex.placeResults = []placeResult{{err: errExchangeDown}, {err: errExchangeDown}, {err: errExchangeDown}, accept}

	_, err := h.eng.placer.PlaceStopEntry(context.Background(), EntryOrder{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: d("0.05"), StopPrice: d("50024"), LimitPrice: d("50080"),
	})

	require.ErrorIs(t, err, ErrNoOrderPlaced)
	assert.ErrorIs(t, err, errExchangeDown)
	assert.Len(t, h.ex.placed, 3, "never more than max attempts")
	assert.Len(t, h.sleeps, 2, "no wait after the last attempt")
	assert.Equal(t, 1, h.notify.count("Stop-limit not placed"))
}

func TestPlacerWaitsRetryDelayBetweenAttempts(t *testing.T) {
	ex := newFakeExchange()
	ex.placeResults = []placeResult{{err: errExchangeDown}, {err: errExchangeDown}}
	p := &OrderPlacer{
		gw:          ex,
		notify:      nil,
		msgs:        formatter{loc: time.UTC, now: time.Now},
		maxAttempts: 3,
		retryDelay:  20 * time.Millisecond,
		sleep:       sleepCtx,
	}

	start := time.Now()
	id, err := p.PlaceStopEntry(context.Background(), EntryOrder{Symbol: "BTCUSDT", Side: exchange.SideSell, Qty: d("1"), StopPrice: d("100"), LimitPrice: d("99")})

	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPlacerStopsWhenContextCancelled(t *testing.T) {
	ex := newFakeExchange()
	ex.placeResults = []placeResult{{err: errExchangeDown}}
	p := &OrderPlacer{
		gw:          ex,
		msgs:        formatter{loc: time.UTC, now: time.Now},
		maxAttempts: 3,
		retryDelay:  time.Hour,
		sleep:       sleepCtx,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PlaceStopEntry(ctx, EntryOrder{Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: d("1"), StopPrice: d("100"), LimitPrice: d("101")})

	assert.ErrorIs(t, err, ErrNoOrderPlaced)
	assert.Len(t, ex.placed, 1)
}
