package app

import (
	"context"
	"fmt"

	"bracketbot/internal/config"
	"bracketbot/internal/engine"
	"bracketbot/internal/logger"
	"bracketbot/internal/scheduler"
	"bracketbot/internal/store/journal"
	webhookhttp "bracketbot/internal/transport/http/webhook"

	"golang.org/x/sync/errgroup"
)

// App wires config, exchange gateway, engine, scheduler and HTTP intake.
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	sched   *scheduler.IntervalScheduler
	server  *webhookhttp.Server
	journal *journal.Store
	guard   []string
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run clears unprotected positions, then serves signals and runs the
// polling jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.journal != nil {
		defer a.journal.Close()
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	// the guard must finish before any job can be scheduled.
	if err := a.engine.RunGuard(ctx, a.guard); err != nil {
		logger.Errorf("startup guard incomplete, continuing: %v", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.sched.Run(ctx)
	})
	return group.Wait()
}

// Engine exposes the engine instance for tests and tooling.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}
