package notifier

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bracketbot/internal/pkg/circuit"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig configures the bot. Endpoint defaults to the public Bot API.
type TelegramConfig struct {
	Token    string
	ChatID   int64
	Endpoint string
	Timeout  time.Duration
}

// Telegram pushes Markdown messages to one chat. Calls go through a circuit
// breaker so an unreachable API fails fast instead of stalling callers.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	breaker *circuit.CircuitBreaker
}

// NewTelegram validates the token against the Bot API (getMe).
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram config incomplete")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init failed: %w", err)
	}
	return &Telegram{
		bot:     bot,
		chatID:  cfg.ChatID,
		breaker: circuit.NewCircuitBreaker("telegram", 5, 2*time.Minute),
	}, nil
}

// SendText sends text as Markdown. A rejected Markdown payload is resent as
// plain text once.
func (t *Telegram) SendText(text string) error {
	return t.breaker.Do(func() error {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		_, err := t.bot.Send(msg)
		var apiErr *tgbotapi.Error
		if err != nil && errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			plain := tgbotapi.NewMessage(t.chatID, text)
			_, err = t.bot.Send(plain)
		}
		return err
	})
}
