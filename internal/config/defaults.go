package config

import (
	"strings"
)

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogFormat       = "text"
	defaultAppLogPath         = "logs/bracketbot.log"
	defaultAppHTTPAddr        = ":5000"
	defaultAppTimezone        = "America/Argentina/Buenos_Aires"
	defaultBinanceBaseURL     = "https://fapi.binance.com"
	defaultBinanceTimeout     = 15
	defaultWebhookSymbol      = "BTCUSDT"
	defaultWebhookTPFactor    = 2.0
	defaultWebhookRiskPercent = 1.0
	defaultWebhookLimitOffset = 80.0
	defaultEntryPollSeconds   = 5
	defaultExitPollSeconds    = 60
	defaultCandleInterval     = "10m"
	defaultEntryTimeoutCandle = 6
	defaultPlaceMaxAttempts   = 3
	defaultPlaceRetryDelayMS  = 1000
	defaultStopOffsetRatio    = 0.3
	defaultMaxLeverage        = 125
	defaultQuoteAsset         = "USDT"
	defaultInstrumentsPath    = "configs/instruments.yaml"
	defaultJournalPath        = "data/journal.db"
	defaultMetricsPath        = "/metrics"
)

// applyDefaults fills every key the config files left unset.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Webhook.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Instruments.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.timezone", &a.Timezone, defaultAppTimezone),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("binance.base_url", &b.BaseURL, defaultBinanceBaseURL),
		intFieldDefault("binance.http_timeout_seconds", &b.HTTPTimeoutSeconds, defaultBinanceTimeout),
	)
}

func (w *WebhookConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("webhook.default_symbol", &w.DefaultSymbol, defaultWebhookSymbol),
		floatFieldDefault("webhook.default_tp_factor", &w.DefaultTPFactor, defaultWebhookTPFactor),
		floatFieldDefault("webhook.default_risk_percent", &w.DefaultRiskPercent, defaultWebhookRiskPercent),
		floatFieldDefault("webhook.default_limit_offset", &w.DefaultLimitOffset, defaultWebhookLimitOffset),
	)
	w.DefaultSymbol = strings.ToUpper(strings.TrimSpace(w.DefaultSymbol))
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.entry_poll_seconds", &e.EntryPollSeconds, defaultEntryPollSeconds),
		intFieldDefault("engine.exit_poll_seconds", &e.ExitPollSeconds, defaultExitPollSeconds),
		stringFieldDefault("engine.candle_interval", &e.CandleInterval, defaultCandleInterval),
		intFieldDefault("engine.entry_timeout_candles", &e.EntryTimeoutCandles, defaultEntryTimeoutCandle),
		intFieldDefault("engine.place_max_attempts", &e.PlaceMaxAttempts, defaultPlaceMaxAttempts),
		intFieldDefault("engine.place_retry_delay_ms", &e.PlaceRetryDelayMS, defaultPlaceRetryDelayMS),
		floatFieldDefault("engine.stop_offset_ratio", &e.StopOffsetRatio, defaultStopOffsetRatio),
		intFieldDefault("engine.max_leverage", &e.MaxLeverage, defaultMaxLeverage),
		stringFieldDefault("engine.quote_asset", &e.QuoteAsset, defaultQuoteAsset),
		fieldDefault{
			key:   "engine.guard_symbols",
			need:  func() bool { return len(e.GuardSymbols) == 0 },
			apply: func() { e.GuardSymbols = []string{defaultWebhookSymbol} },
		},
	)
	e.QuoteAsset = strings.ToUpper(strings.TrimSpace(e.QuoteAsset))
}

func (i *InstrumentsConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("instruments.path", &i.Path, defaultInstrumentsPath),
	)
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("journal.enabled", &j.Enabled, true),
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("metrics.enabled", &m.Enabled, true),
		stringFieldDefault("metrics.path", &m.Path, defaultMetricsPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
