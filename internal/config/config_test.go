package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, ":5000", cfg.App.HTTPAddr)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.App.Timezone)
	assert.Equal(t, 15*time.Second, cfg.Binance.HTTPTimeout())
	assert.Equal(t, 5*time.Second, cfg.Engine.EntryPollInterval())
	assert.Equal(t, time.Minute, cfg.Engine.ExitPollInterval())
	assert.Equal(t, 60*time.Minute, cfg.Engine.EntryTimeout())
	assert.Equal(t, time.Second, cfg.Engine.PlaceRetryDelay())
	assert.Equal(t, 3, cfg.Engine.PlaceMaxAttempts)
	assert.InDelta(t, 0.3, cfg.Engine.StopOffsetRatio, 1e-9)
	assert.Equal(t, 125, cfg.Engine.MaxLeverage)
	assert.Equal(t, "USDT", cfg.Engine.QuoteAsset)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Engine.GuardSymbols)
	assert.Equal(t, "BTCUSDT", cfg.Webhook.DefaultSymbol)
	assert.InDelta(t, 80.0, cfg.Webhook.DefaultLimitOffset, 1e-9)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadMergesIncludesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "engine:\n  max_leverage: 20\n  place_max_attempts: 2\n")
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
engine:
  place_max_attempts: "5"
  candle_interval: 5m
  entry_timeout_candles: 3
journal:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Engine.MaxLeverage)
	assert.Equal(t, 5, cfg.Engine.PlaceMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Engine.EntryTimeout())
	assert.False(t, cfg.Journal.Enabled, "explicit false must survive defaults")
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestEnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "binance:\n  api_key: from-file\n")
	t.Setenv(EnvBinanceAPIKey, "from-env")
	t.Setenv(EnvBinanceAPISecret, "s3cret")
	t.Setenv(EnvWebhookSecret, "hook")
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "-100200")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Binance.APIKey)
	assert.Equal(t, "s3cret", cfg.Binance.APISecret)
	assert.Equal(t, "hook", cfg.Webhook.Secret)
	assert.True(t, cfg.Notify.Telegram.Enabled)
	assert.Equal(t, "-100200", cfg.Notify.Telegram.ChatID)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "BRACKETBOT_DOTENV_PROBE=loaded\n")
	t.Setenv("BRACKETBOT_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("BRACKETBOT_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("BRACKETBOT_DOTENV_PROBE"))
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"stop ratio":      "engine:\n  stop_offset_ratio: 1.5\n",
		"candle interval": "engine:\n  candle_interval: soon\n",
		"chat id":         "notify:\n  telegram:\n    enabled: true\n    bot_token: x\n    chat_id: abc\n",
		"log format":      "app:\n  log_format: xml\n",
		"timezone":        "app:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
