// Package engine runs the single-position bracket order lifecycle: a
// stop-limit entry is watched until it fills or times out, a fill is
// protected by stop-loss and take-profit legs, and the exit is reconciled
// from the exchange's trade history.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/gateway/notifier"
	"bracketbot/internal/instrument"
	"bracketbot/internal/logger"
	"bracketbot/internal/scheduler"

	"github.com/shopspring/decimal"
)

// Job identities in the scheduler.
const (
	JobEntryMonitor   = "entry-monitor"
	JobExitReconciler = "exit-reconciler"
)

// SpecSource resolves instrument filters; *instrument.Registry satisfies it.
type SpecSource interface {
	Lookup(symbol string) (instrument.Spec, bool)
}

func lookupSpec(src SpecSource, symbol string) instrument.Spec {
	if src == nil {
		return instrument.Default(symbol)
	}
	spec, _ := src.Lookup(symbol)
	return spec
}

// Journal receives an append-only audit trail of lifecycle events.
type Journal interface {
	Record(ctx context.Context, kind, symbol string, orderID int64, payload map[string]any) error
}

type Config struct {
	QuoteAsset      string
	EntryPoll       time.Duration
	ExitPoll        time.Duration
	EntryTimeout    time.Duration
	StopOffsetRatio decimal.Decimal
	MaxLeverage     int
	MaxAttempts     int
	RetryDelay      time.Duration
	Location        *time.Location
}

func (c Config) withDefaults() Config {
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.EntryPoll <= 0 {
		c.EntryPoll = 5 * time.Second
	}
	if c.ExitPoll <= 0 {
		c.ExitPoll = 60 * time.Second
	}
	if c.EntryTimeout <= 0 {
		c.EntryTimeout = 60 * time.Minute
	}
	if !c.StopOffsetRatio.IsPositive() || c.StopOffsetRatio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		c.StopOffsetRatio = decimal.RequireFromString("0.3")
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = instrument.DefaultMaxLeverage
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type Option func(*Engine)

func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock replaces the wall clock used for timeouts and exit attribution.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithSleep replaces the wait between placement retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.placer.sleep = sleep
		}
	}
}

// Engine owns the PositionState. Every read-modify-write of the state, from
// signals, jobs or the safety endpoint, happens under mu.
type Engine struct {
	mu    sync.Mutex
	state PositionState

	gw       exchange.Gateway
	specs    SpecSource
	sched    scheduler.Registry
	notify   *notifier.BestEffort
	journal  Journal
	metrics  *Metrics
	msgs     formatter
	cfg      Config
	nowFn    func() time.Time
	placer   *OrderPlacer
	brackets *BracketManager
	guard    *CrashRecoveryGuard
}

func New(gw exchange.Gateway, specs SpecSource, sched scheduler.Registry, n notifier.TextNotifier, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		gw:     gw,
		specs:  specs,
		sched:  sched,
		notify: notifier.NewBestEffort(n),
		cfg:    cfg,
		nowFn:  time.Now,
	}
	// components read the clock through e so WithClock applies everywhere.
	e.msgs = formatter{loc: cfg.Location, now: func() time.Time { return e.nowFn() }}
	e.guard = &CrashRecoveryGuard{gw: gw, specs: specs, notify: e.notify, msgs: e.msgs}
	e.brackets = &BracketManager{gw: gw, specs: specs, guard: e.guard}
	e.placer = &OrderPlacer{
		gw:          gw,
		specs:       specs,
		notify:      e.notify,
		msgs:        e.msgs,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current position record.
func (e *Engine) State() PositionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunGuard force-closes unprotected positions on every symbol. It is meant
// to run once at startup, before any job is scheduled.
func (e *Engine) RunGuard(ctx context.Context, symbols []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, sym := range symbols {
		closed, err := e.guard.Run(ctx, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if closed {
			e.metrics.guardClose()
			e.record(ctx, "guard_close", sym, 0, map[string]any{"trigger": "startup"})
		}
	}
	return errors.Join(errs...)
}

// SafetyClose runs the guard on demand and drops any local lifecycle on the
// symbol. A failed guard keeps the lifecycle so the reconciler keeps watching.
func (e *Engine) SafetyClose(ctx context.Context, symbol string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	closed, err := e.guard.Run(ctx, symbol)
	if closed {
		e.metrics.guardClose()
		e.record(ctx, "guard_close", symbol, 0, map[string]any{"trigger": "manual"})
	}
	if err != nil {
		return closed, err
	}
	if e.state.Active() && e.state.Symbol == symbol {
		e.dropLifecycle()
	}
	return closed, nil
}

// endLifecycle returns to Idle at the end of a lifecycle. Callers hold e.mu.
func (e *Engine) endLifecycle() {
	if err := e.state.Clear(); err != nil {
		logger.Errorf("engine: %v", err)
	}
	e.metrics.setPhase(e.state.Phase)
}

// dropLifecycle deregisters both jobs and clears the state.
func (e *Engine) dropLifecycle() {
	e.sched.Remove(JobEntryMonitor)
	e.sched.Remove(JobExitReconciler)
	e.endLifecycle()
}

func (e *Engine) record(ctx context.Context, kind, symbol string, orderID int64, payload map[string]any) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, kind, symbol, orderID, payload); err != nil {
		logger.Warnf("journal %s failed: %v", kind, err)
	}
}
