package engine

import (
	"errors"
	"fmt"
	"time"

	"bracketbot/internal/gateway/exchange"

	"github.com/shopspring/decimal"
)

// Phase is the lifecycle stage of the single tracked position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEntryPending
	PhaseEntryFilled
	PhaseExitPending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEntryPending:
		return "entry_pending"
	case PhaseEntryFilled:
		return "entry_filled"
	case PhaseExitPending:
		return "exit_pending"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ErrInvalidTransition is returned when a transition is attempted from the
// wrong phase.
var ErrInvalidTransition = errors.New("invalid position transition")

// PositionState is the one mutable lifecycle record. It is owned by Engine
// and only touched under Engine.mu.
type PositionState struct {
	Phase             Phase           `json:"phase"`
	Symbol            string          `json:"symbol,omitempty"`
	Side              exchange.Side   `json:"side,omitempty"`
	EntryOrderID      int64           `json:"entry_order_id,omitempty"`
	Qty               decimal.Decimal `json:"qty"`
	StopPrice         decimal.Decimal `json:"stop_price"`
	LimitPrice        decimal.Decimal `json:"limit_price"`
	StopLossDistance  decimal.Decimal `json:"sl_distance"`
	TakeProfitFactor  decimal.Decimal `json:"tp_factor"`
	EntryTime         time.Time       `json:"entry_time,omitempty"`
	FillPrice         decimal.Decimal `json:"fill_price"`
	TakeProfitOrderID int64           `json:"tp_order_id,omitempty"`
	StopLossOrderID   int64           `json:"sl_order_id,omitempty"`
	TakeProfitPrice   decimal.Decimal `json:"tp_price"`
	StopLossPrice     decimal.Decimal `json:"sl_price"`
	Leverage          int             `json:"leverage,omitempty"`
	RiskPercent       decimal.Decimal `json:"risk_percent"`
}

// EntryParams is what BeginEntry records about a freshly placed entry.
type EntryParams struct {
	Symbol           string
	Side             exchange.Side
	OrderID          int64
	Qty              decimal.Decimal
	StopPrice        decimal.Decimal
	LimitPrice       decimal.Decimal
	StopLossDistance decimal.Decimal
	TakeProfitFactor decimal.Decimal
	Leverage         int
	RiskPercent      decimal.Decimal
}

func (s *PositionState) Active() bool { return s.Phase != PhaseIdle }

// BeginEntry moves Idle -> EntryPending.
func (s *PositionState) BeginEntry(p EntryParams, now time.Time) error {
	if s.Phase != PhaseIdle {
		return fmt.Errorf("%w: begin entry from %s", ErrInvalidTransition, s.Phase)
	}
	if p.OrderID == 0 {
		return fmt.Errorf("%w: begin entry without order id", ErrInvalidTransition)
	}
	*s = PositionState{
		Phase:            PhaseEntryPending,
		Symbol:           p.Symbol,
		Side:             p.Side,
		EntryOrderID:     p.OrderID,
		Qty:              p.Qty,
		StopPrice:        p.StopPrice,
		LimitPrice:       p.LimitPrice,
		StopLossDistance: p.StopLossDistance,
		TakeProfitFactor: p.TakeProfitFactor,
		EntryTime:        now,
		Leverage:         p.Leverage,
		RiskPercent:      p.RiskPercent,
	}
	return nil
}

// MarkFilled moves EntryPending -> EntryFilled with the exchange's fill.
func (s *PositionState) MarkFilled(side exchange.Side, price, qty decimal.Decimal) error {
	if s.Phase != PhaseEntryPending {
		return fmt.Errorf("%w: mark filled from %s", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseEntryFilled
	if side.Valid() {
		s.Side = side
	}
	s.FillPrice = price
	s.Qty = qty
	return nil
}

// ArmExit moves EntryFilled -> ExitPending once both bracket legs rest.
// EntryTime becomes the bracket time, the reference for exit attribution.
func (s *PositionState) ArmExit(b Bracket, now time.Time) error {
	if s.Phase != PhaseEntryFilled {
		return fmt.Errorf("%w: arm exit from %s", ErrInvalidTransition, s.Phase)
	}
	if b.TakeProfitOrderID == 0 {
		return fmt.Errorf("%w: arm exit without take-profit order", ErrInvalidTransition)
	}
	s.Phase = PhaseExitPending
	s.TakeProfitOrderID = b.TakeProfitOrderID
	s.StopLossOrderID = b.StopLossOrderID
	s.TakeProfitPrice = b.TakeProfitPrice
	s.StopLossPrice = b.StopLossPrice
	s.EntryTime = now
	return nil
}

// Clear returns to Idle. Clearing an idle state is an invalid transition, so
// every lifecycle ends exactly once.
func (s *PositionState) Clear() error {
	if s.Phase == PhaseIdle {
		return fmt.Errorf("%w: clear from idle", ErrInvalidTransition)
	}
	*s = PositionState{}
	return nil
}
