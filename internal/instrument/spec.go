// Package instrument holds per-symbol trading filters: price tick, quantity
// step and leverage cap.
package instrument

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Spec describes the price and size grid of one futures contract.
type Spec struct {
	Symbol      string `yaml:"-" json:"symbol"`
	TickSize    string `yaml:"tick_size" json:"tick_size"`
	StepSize    string `yaml:"step_size" json:"step_size"`
	MaxLeverage int    `yaml:"max_leverage" json:"max_leverage"`
}

// Builtin filters used when neither the instruments file nor the exchange
// knows a symbol.
const (
	DefaultTickSize    = "0.10"
	DefaultStepSize    = "0.001"
	DefaultMaxLeverage = 125
)

// Default returns the builtin spec for symbol.
func Default(symbol string) Spec {
	return Spec{
		Symbol:      normalize(symbol),
		TickSize:    DefaultTickSize,
		StepSize:    DefaultStepSize,
		MaxLeverage: DefaultMaxLeverage,
	}
}

func (s Spec) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("instrument symbol is empty")
	}
	for name, raw := range map[string]string{"tick_size": s.TickSize, "step_size": s.StepSize} {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("instrument %s: %s must be a positive decimal, got %q", s.Symbol, name, raw)
		}
	}
	if s.MaxLeverage <= 0 {
		return fmt.Errorf("instrument %s: max_leverage must be > 0", s.Symbol)
	}
	return nil
}

// overlay fills zero fields of s from base.
func (s Spec) overlay(base Spec) Spec {
	if strings.TrimSpace(s.TickSize) == "" {
		s.TickSize = base.TickSize
	}
	if strings.TrimSpace(s.StepSize) == "" {
		s.StepSize = base.StepSize
	}
	if s.MaxLeverage <= 0 {
		s.MaxLeverage = base.MaxLeverage
	}
	return s
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
