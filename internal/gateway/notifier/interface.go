package notifier

import (
	"bracketbot/internal/logger"
)

// TextNotifier defines a minimal text notification interface.
// Different components can depend on it without importing concrete
// implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// BestEffort delivers through inner and swallows failures after logging
// them. A nil inner only logs.
type BestEffort struct {
	inner TextNotifier
}

func NewBestEffort(inner TextNotifier) *BestEffort {
	return &BestEffort{inner: inner}
}

// Send never fails; the message is always mirrored to the log.
func (b *BestEffort) Send(text string) {
	logger.Debugf("notify: %s", text)
	if b == nil || b.inner == nil {
		return
	}
	if err := b.inner.SendText(text); err != nil {
		logger.Warnf("notification delivery failed: %v", err)
	}
}

// SendText lets a BestEffort be nested where a TextNotifier is expected.
func (b *BestEffort) SendText(text string) error {
	b.Send(text)
	return nil
}

// Log writes every message to the process log. Used when Telegram is disabled
// or unreachable at startup.
type Log struct{}

func (Log) SendText(text string) error {
	logger.InfoBlock(text)
	return nil
}

type Nop struct{}

func (Nop) SendText(string) error { return nil }
