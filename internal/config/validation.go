package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// validate rejects configurations the engine cannot run safely with.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Binance.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Webhook.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path cannot be empty when the journal is enabled")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(a.Timezone)); err != nil {
		return fmt.Errorf("app.timezone invalid: %w", err)
	}
	return nil
}

func (b *BinanceConfig) validate() error {
	if strings.TrimSpace(b.BaseURL) == "" && !b.Testnet {
		return fmt.Errorf("binance.base_url cannot be empty")
	}
	if b.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("binance.http_timeout_seconds must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.EntryPollSeconds <= 0 || e.ExitPollSeconds <= 0 {
		return fmt.Errorf("engine poll intervals must be > 0")
	}
	if e.EntryTimeout() <= 0 {
		return fmt.Errorf("engine.candle_interval=%q with entry_timeout_candles=%d gives no entry timeout",
			e.CandleInterval, e.EntryTimeoutCandles)
	}
	if e.PlaceMaxAttempts <= 0 {
		return fmt.Errorf("engine.place_max_attempts must be > 0")
	}
	if e.PlaceRetryDelayMS < 0 {
		return fmt.Errorf("engine.place_retry_delay_ms must be >= 0")
	}
	if e.StopOffsetRatio <= 0 || e.StopOffsetRatio >= 1 {
		return fmt.Errorf("engine.stop_offset_ratio must be in (0,1)")
	}
	if e.MaxLeverage <= 0 {
		return fmt.Errorf("engine.max_leverage must be > 0")
	}
	if e.QuoteAsset == "" {
		return fmt.Errorf("engine.quote_asset cannot be empty")
	}
	return nil
}

func (w *WebhookConfig) validate() error {
	if w.DefaultTPFactor <= 0 || w.DefaultRiskPercent <= 0 {
		return fmt.Errorf("webhook defaults must be > 0")
	}
	if w.DefaultRiskPercent > 100 {
		return fmt.Errorf("webhook.default_risk_percent must be <= 100")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(n.Telegram.ChatID), 10, 64); err != nil {
			return fmt.Errorf("notify.telegram.chat_id must be numeric: %w", err)
		}
	}
	return nil
}
