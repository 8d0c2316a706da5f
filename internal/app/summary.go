package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"bracketbot/internal/config"
	"bracketbot/internal/instrument"
)

type StartupSummary struct {
	Exchange    ExchangeSummary
	Engine      EngineSummary
	Instruments []instrument.Spec
	Synced      int
	Intake      IntakeSummary
}

type ExchangeSummary struct {
	BaseURL string
	Testnet bool
	Proxy   bool
}

type EngineSummary struct {
	GuardSymbols []string
	EntryPoll    string
	ExitPoll     string
	EntryTimeout string
	MaxAttempts  int
	MaxLeverage  int
	QuoteAsset   string
}

type IntakeSummary struct {
	Addr     string
	Secret   bool
	Telegram bool
	Journal  string
	Metrics  string
	Timezone string
}

func buildSummary(cfg *config.Config, guard []string, specs *instrument.Registry, synced int) *StartupSummary {
	s := &StartupSummary{
		Exchange: ExchangeSummary{
			BaseURL: cfg.Binance.BaseURL,
			Testnet: cfg.Binance.Testnet,
			Proxy:   cfg.Binance.ProxyURL != "",
		},
		Engine: EngineSummary{
			GuardSymbols: guard,
			EntryPoll:    cfg.Engine.EntryPollInterval().String(),
			ExitPoll:     cfg.Engine.ExitPollInterval().String(),
			EntryTimeout: cfg.Engine.EntryTimeout().String(),
			MaxAttempts:  cfg.Engine.PlaceMaxAttempts,
			MaxLeverage:  cfg.Engine.MaxLeverage,
			QuoteAsset:   cfg.Engine.QuoteAsset,
		},
		Synced: synced,
		Intake: IntakeSummary{
			Addr:     cfg.App.HTTPAddr,
			Secret:   cfg.Webhook.Secret != "",
			Telegram: cfg.Notify.Telegram.Enabled,
			Timezone: cfg.App.Timezone,
		},
	}
	if cfg.Journal.Enabled {
		s.Intake.Journal = cfg.Journal.Path
	}
	if cfg.Metrics.Enabled {
		s.Intake.Metrics = cfg.Metrics.Path
	}
	if specs != nil {
		for _, sym := range specs.Symbols() {
			if spec, ok := specs.Lookup(sym); ok {
				s.Instruments = append(s.Instruments, spec)
			}
		}
	}
	return s
}

func (s *StartupSummary) Print() {
	s.WriteTo(os.Stdout)
}

// WriteTo renders the summary block.
func (s *StartupSummary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(&b, line)

	fmt.Fprintln(&b, "[EXCHANGE]")
	fmt.Fprintf(&b, "  base url: %s\n", orDash(s.Exchange.BaseURL))
	fmt.Fprintf(&b, "  testnet:  %v\n", s.Exchange.Testnet)
	fmt.Fprintf(&b, "  proxy:    %v\n", s.Exchange.Proxy)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[ENGINE]")
	fmt.Fprintf(&b, "  guard symbols: %s\n", formatList(s.Engine.GuardSymbols))
	fmt.Fprintf(&b, "  entry poll:    %s\n", s.Engine.EntryPoll)
	fmt.Fprintf(&b, "  exit poll:     %s\n", s.Engine.ExitPoll)
	fmt.Fprintf(&b, "  entry timeout: %s\n", s.Engine.EntryTimeout)
	fmt.Fprintf(&b, "  max attempts:  %d\n", s.Engine.MaxAttempts)
	fmt.Fprintf(&b, "  max leverage:  %d\n", s.Engine.MaxLeverage)
	fmt.Fprintf(&b, "  quote asset:   %s\n", s.Engine.QuoteAsset)
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "[INSTRUMENTS] (%d synced from exchange)\n", s.Synced)
	if len(s.Instruments) == 0 {
		fmt.Fprintln(&b, "  (defaults only)")
	}
	for _, spec := range s.Instruments {
		fmt.Fprintf(&b, "  > %s tick=%s step=%s max_leverage=%d\n", spec.Symbol, spec.TickSize, spec.StepSize, spec.MaxLeverage)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[INTAKE]")
	fmt.Fprintf(&b, "  http:     %s\n", orDash(s.Intake.Addr))
	fmt.Fprintf(&b, "  secret:   %v\n", s.Intake.Secret)
	fmt.Fprintf(&b, "  telegram: %v\n", s.Intake.Telegram)
	fmt.Fprintf(&b, "  journal:  %s\n", orDash(s.Intake.Journal))
	fmt.Fprintf(&b, "  metrics:  %s\n", orDash(s.Intake.Metrics))
	fmt.Fprintf(&b, "  timezone: %s\n", orDash(s.Intake.Timezone))
	fmt.Fprintln(&b, line)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
