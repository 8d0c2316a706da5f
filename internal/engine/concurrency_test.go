package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/instrument"
	"bracketbot/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fillResting fills every resting entry (STOP) and take-profit (LIMIT)
// order, recording a closing trade for each take-profit.
func (f *fakeExchange) fillResting(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.orders {
		if o.Status != exchange.StatusNew {
			continue
		}
		switch o.Type {
		case exchange.OrderTypeStop:
			o.AvgPrice = d("50000")
		case exchange.OrderTypeLimit:
			o.AvgPrice = d("50400")
			f.trades = append(f.trades, exchange.Trade{
				OrderID: id, Side: o.Side, Time: now, Qty: o.OrigQty,
				RealizedPnL: d("1"), Commission: d("0.01"),
			})
		default:
			continue
		}
		o.Status = exchange.StatusFilled
		o.ExecutedQty = o.OrigQty
		f.orders[id] = o
	}
}

func TestEngineWithIntervalScheduler(t *testing.T) {
	reg, err := instrument.NewRegistry("")
	require.NoError(t, err)
	ex := newFakeExchange()
	sched := scheduler.NewIntervalScheduler()
	notify := new(mockNotifier)
	notify.On("SendText", mock.Anything).Return(nil)
	journal := &memJournal{}
	eng := New(ex, reg, sched, notify, Config{
		EntryPoll:  2 * time.Millisecond,
		ExitPoll:   3 * time.Millisecond,
		RetryDelay: time.Millisecond,
	},
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithJournal(journal),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		assert.NoError(t, sched.Run(ctx))
	}()
	stopped := false
	stop := func() {
		if !stopped {
			stopped = true
			cancel()
			<-runDone
		}
	}
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ex.fillResting(time.Now())
			}
		}
	}()

	// phase and registered jobs must agree whenever the engine lock is free.
	var (
		violMu     sync.Mutex
		violations []string
	)
	checkJobs := func() {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		phase := eng.state.Phase
		entry, exit := sched.Has(JobEntryMonitor), sched.Has(JobExitReconciler)
		if (phase == PhaseEntryPending) != entry || (phase == PhaseExitPending) != exit {
			violMu.Lock()
			violations = append(violations, fmt.Sprintf("phase=%s entry=%t exit=%t", phase, entry, exit))
			violMu.Unlock()
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				res := eng.HandleSignal(ctx, buySignal())
				assert.Equal(t, StatusPlaced, res.Status, res.Message)
				time.Sleep(2 * time.Millisecond)
			}
		}()
	}
	readersDone := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 2; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-readersDone:
					return
				default:
				}
				_ = eng.State()
				checkJobs()
				time.Sleep(500 * time.Microsecond)
			}
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		for _, k := range journal.kinds() {
			if k == "exit_TP" {
				return eng.state.Phase == PhaseIdle
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	close(readersDone)
	readers.Wait()
	checkJobs()

	violMu.Lock()
	assert.Empty(t, violations)
	violMu.Unlock()

	stop()
	assert.Empty(t, sched.Jobs())
	assert.Equal(t, PhaseIdle, eng.State().Phase)
}
