package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bracketbot/internal/config"
	"bracketbot/internal/engine"
	"bracketbot/internal/gateway/binance"
	"bracketbot/internal/gateway/notifier"
	"bracketbot/internal/instrument"
	"bracketbot/internal/logger"
	symbolpkg "bracketbot/internal/pkg/symbol"
	"bracketbot/internal/scheduler"
	"bracketbot/internal/store/journal"
	webhookhttp "bracketbot/internal/transport/http/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const instrumentSyncTimeout = 20 * time.Second

type AppBuilder struct {
	cfg *config.Config

	gatewayFn  func(config.BinanceConfig, string) (*binance.Client, error)
	notifierFn func(config.TelegramConfig) notifier.TextNotifier
	journalFn  func(config.JournalConfig) (*journal.Store, error)
}

type AppBuilderOption func(*AppBuilder)

// WithNotifier replaces the Telegram/log notifier selection.
func WithNotifier(fn func(config.TelegramConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		gatewayFn:  buildGateway,
		notifierFn: buildNotifier,
		journalFn:  buildJournal,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	gw, err := b.gatewayFn(cfg.Binance, cfg.Engine.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("binance gateway: %w", err)
	}

	specs, err := instrument.NewRegistry(cfg.Instruments.Path)
	if err != nil {
		return nil, fmt.Errorf("instrument registry: %w", err)
	}
	synced := 0
	if cfg.Instruments.SyncFromExchange {
		syncCtx, cancel := context.WithTimeout(ctx, instrumentSyncTimeout)
		list, err := gw.InstrumentSpecs(syncCtx)
		cancel()
		if err != nil {
			logger.Warnf("instrument sync from exchange failed, using file and defaults: %v", err)
		} else {
			synced = specs.Merge(list)
			logger.Infof("✓ synced %d instrument filters from exchange", synced)
		}
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = b.journalFn(cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
	}

	promReg := prometheus.NewRegistry()
	var metrics *engine.Metrics
	if cfg.Metrics.Enabled {
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = engine.NewMetrics(promReg)
	}

	sched := scheduler.NewIntervalScheduler()
	opts := []engine.Option{engine.WithMetrics(metrics)}
	if store != nil {
		opts = append(opts, engine.WithJournal(store))
	}
	eng := engine.New(gw, specs, sched, b.notifierFn(cfg.Notify.Telegram), engineConfig(cfg), opts...)

	srvCfg := webhookhttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Engine:   eng,
		Defaults: webhookDefaults(cfg.Webhook),
		Secret:   cfg.Webhook.Secret,
	}
	if store != nil {
		srvCfg.Journal = store
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Path
		srvCfg.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}
	server, err := webhookhttp.NewServer(srvCfg)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	guard := symbolpkg.NormalizeList(cfg.Engine.GuardSymbols)
	return &App{
		cfg:     cfg,
		engine:  eng,
		sched:   sched,
		server:  server,
		journal: store,
		guard:   guard,
		Summary: buildSummary(cfg, guard, specs, synced),
	}, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		QuoteAsset:      cfg.Engine.QuoteAsset,
		EntryPoll:       cfg.Engine.EntryPollInterval(),
		ExitPoll:        cfg.Engine.ExitPollInterval(),
		EntryTimeout:    cfg.Engine.EntryTimeout(),
		StopOffsetRatio: decimal.NewFromFloat(cfg.Engine.StopOffsetRatio),
		MaxLeverage:     cfg.Engine.MaxLeverage,
		MaxAttempts:     cfg.Engine.PlaceMaxAttempts,
		RetryDelay:      cfg.Engine.PlaceRetryDelay(),
		Location:        cfg.App.Location(),
	}
}

func webhookDefaults(w config.WebhookConfig) webhookhttp.Defaults {
	return webhookhttp.Defaults{
		Symbol:      symbolpkg.Binance.ToExchange(w.DefaultSymbol),
		TPFactor:    decimal.NewFromFloat(w.DefaultTPFactor),
		RiskPercent: decimal.NewFromFloat(w.DefaultRiskPercent),
		LimitOffset: decimal.NewFromFloat(w.DefaultLimitOffset),
	}
}

func buildGateway(cfg config.BinanceConfig, quote string) (*binance.Client, error) {
	return binance.New(binance.Config{
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
		RESTBaseURL: cfg.BaseURL,
		Testnet:     cfg.Testnet,
		HTTPTimeout: cfg.HTTPTimeout(),
		ProxyURL:    cfg.ProxyURL,
		QuoteAsset:  quote,
	})
}

// buildNotifier falls back to the process log when Telegram is disabled or
// cannot be reached at startup.
func buildNotifier(cfg config.TelegramConfig) notifier.TextNotifier {
	if !cfg.Enabled {
		logger.Infof("telegram disabled, notifications go to the log")
		return notifier.Log{}
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		logger.Warnf("telegram chat_id %q invalid, notifications go to the log", cfg.ChatID)
		return notifier.Log{}
	}
	tg, err := notifier.NewTelegram(notifier.TelegramConfig{Token: cfg.BotToken, ChatID: chatID})
	if err != nil {
		logger.Warnf("telegram unavailable, notifications go to the log: %v", err)
		return notifier.Log{}
	}
	logger.Infof("✓ telegram notifier ready chat=%d", chatID)
	return tg
}

func buildJournal(cfg config.JournalConfig) (*journal.Store, error) {
	return journal.Open(cfg.Path)
}
