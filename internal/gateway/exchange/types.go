// Package exchange defines the exchange-agnostic order, trade and position
// types shared by the engine and the concrete gateways.
package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side of a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Filled reports the terminal-filled state.
func (s OrderStatus) Filled() bool { return s == StatusFilled }

// Dead reports a terminal state reached without a complete fill.
func (s OrderStatus) Dead() bool {
	return s == StatusCanceled || s == StatusExpired || s == StatusRejected
}

const TimeInForceGTC = "GTC"

// OrderRequest describes one order submission. Zero decimals are omitted
// from the wire request.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	StopPrice     decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   string
	ClosePosition bool
	ReduceOnly    bool
}

// Order is the exchange's view of a previously placed order.
type Order struct {
	Symbol      string
	OrderID     int64
	Status      OrderStatus
	Side        Side
	Type        OrderType
	AvgPrice    decimal.Decimal
	ExecutedQty decimal.Decimal
	OrigQty     decimal.Decimal
	UpdatedAt   time.Time
}

// FilledQty prefers the executed quantity and falls back to the original one.
func (o Order) FilledQty() decimal.Decimal {
	if o.ExecutedQty.IsPositive() {
		return o.ExecutedQty
	}
	return o.OrigQty
}

// Trade is one fill from the account trade history.
type Trade struct {
	OrderID     int64
	Side        Side
	Time        time.Time
	Price       decimal.Decimal
	Qty         decimal.Decimal
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
}

// Balance is one asset row of the futures wallet.
type Balance struct {
	Asset            string
	Balance          decimal.Decimal
	AvailableBalance decimal.Decimal
}

// Position is an open position; Amount is signed (negative = short).
type Position struct {
	Symbol     string
	Amount     decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
}

// ClosingSide is the side of the order that flattens the position.
func (p Position) ClosingSide() Side {
	if p.Amount.IsNegative() {
		return SideBuy
	}
	return SideSell
}

// Size is the unsigned position size.
func (p Position) Size() decimal.Decimal { return p.Amount.Abs() }

// ErrMissingOrderID marks an accepted-looking response that carried no order id.
var ErrMissingOrderID = errors.New("exchange returned no order id")

// APIError is an exchange-level rejection (validation, rate limit, margin...).
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error %d: %s", e.Code, e.Message)
}
