package config

import (
	"strings"
	"time"

	"bracketbot/internal/scheduler"
)

// Config is the root configuration of bracketbot.
type Config struct {
	App         AppConfig         `toml:"app"`
	Binance     BinanceConfig     `toml:"binance"`
	Webhook     WebhookConfig     `toml:"webhook"`
	Engine      EngineConfig      `toml:"engine"`
	Instruments InstrumentsConfig `toml:"instruments"`
	Notify      NotifyConfig      `toml:"notify"`
	Journal     JournalConfig     `toml:"journal"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
	Timezone  string `toml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(a.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type BinanceConfig struct {
	APIKey             string `toml:"api_key"`
	APISecret          string `toml:"api_secret"`
	BaseURL            string `toml:"base_url"`
	Testnet            bool   `toml:"testnet"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyURL           string `toml:"proxy_url"`
}

func (b BinanceConfig) HTTPTimeout() time.Duration {
	return time.Duration(b.HTTPTimeoutSeconds) * time.Second
}

// WebhookConfig holds the inbound signal defaults applied when an alert omits a field.
type WebhookConfig struct {
	Secret             string  `toml:"secret"`
	DefaultSymbol      string  `toml:"default_symbol"`
	DefaultTPFactor    float64 `toml:"default_tp_factor"`
	DefaultRiskPercent float64 `toml:"default_risk_percent"`
	DefaultLimitOffset float64 `toml:"default_limit_offset"`
}

type EngineConfig struct {
	EntryPollSeconds    int      `toml:"entry_poll_seconds"`
	ExitPollSeconds     int      `toml:"exit_poll_seconds"`
	CandleInterval      string   `toml:"candle_interval"`
	EntryTimeoutCandles int      `toml:"entry_timeout_candles"`
	PlaceMaxAttempts    int      `toml:"place_max_attempts"`
	PlaceRetryDelayMS   int      `toml:"place_retry_delay_ms"`
	StopOffsetRatio     float64  `toml:"stop_offset_ratio"`
	MaxLeverage         int      `toml:"max_leverage"`
	QuoteAsset          string   `toml:"quote_asset"`
	GuardSymbols        []string `toml:"guard_symbols"`
}

func (e EngineConfig) EntryPollInterval() time.Duration {
	return time.Duration(e.EntryPollSeconds) * time.Second
}

func (e EngineConfig) ExitPollInterval() time.Duration {
	return time.Duration(e.ExitPollSeconds) * time.Second
}

// EntryTimeout is how long an unfilled entry may rest: candles x candle interval.
func (e EngineConfig) EntryTimeout() time.Duration {
	d, ok := scheduler.ParseIntervalDuration(e.CandleInterval)
	if !ok {
		return 0
	}
	return time.Duration(e.EntryTimeoutCandles) * d
}

func (e EngineConfig) PlaceRetryDelay() time.Duration {
	return time.Duration(e.PlaceRetryDelayMS) * time.Millisecond
}

type InstrumentsConfig struct {
	Path             string `toml:"path"`
	SyncFromExchange bool   `toml:"sync_from_exchange"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
