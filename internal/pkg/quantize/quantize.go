// Package quantize rounds prices and quantities onto an instrument's tick or step grid.
package quantize

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MustStep parses a tick/step size such as "0.10" or "0.001".
// A zero, negative or malformed step is a programming error and panics.
func MustStep(step string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(step))
	if err != nil {
		panic(fmt.Sprintf("quantize: invalid step %q: %v", step, err))
	}
	if !d.IsPositive() {
		panic(fmt.Sprintf("quantize: step must be positive, got %q", step))
	}
	return d
}

// Decimal rounds v to the nearest multiple of step, ties rounding up.
func Decimal(v decimal.Decimal, step string) decimal.Decimal {
	return ToStep(v, MustStep(step))
}

// ToStep is Decimal with an already parsed step.
func ToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		panic(fmt.Sprintf("quantize: step must be positive, got %s", step))
	}
	// Round(0) is half away from zero; every caller quantizes non-negative
	// prices and sizes, where that is exactly half-up.
	return v.Div(step).Round(0).Mul(step)
}

// Float quantizes a float64 through its shortest decimal representation so
// binary drift in v does not leak into the result.
func Float(v float64, step string) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	out, _ := Decimal(decimal.NewFromFloat(v), step).Float64()
	return out
}

// String quantizes v and formats it with the step's number of decimals,
// the representation the exchange expects in order parameters.
func String(v decimal.Decimal, step string) string {
	s := MustStep(step)
	places := int32(0)
	// "0.10" and "0.1" describe the same grid; count significant decimals only.
	if exp := decimal.RequireFromString(s.String()).Exponent(); exp < 0 {
		places = -exp
	}
	return ToStep(v, s).StringFixed(places)
}
