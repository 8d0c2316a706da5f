package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the narrow exchange surface the order lifecycle engine needs.
// Implementations own network timeouts; callers never block indefinitely.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (int64, error)

	QueryOrder(ctx context.Context, symbol string, orderID int64) (Order, error)

	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	CancelAllOpenOrders(ctx context.Context, symbol string) error

	// GetOpenPosition returns nil when the account is flat on symbol.
	GetOpenPosition(ctx context.Context, symbol string) (*Position, error)

	GetAccountTrades(ctx context.Context, symbol string) ([]Trade, error)

	GetBalances(ctx context.Context) ([]Balance, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// FindBalance returns the balance entry for asset, if present.
func FindBalance(balances []Balance, asset string) (Balance, bool) {
	for _, b := range balances {
		if b.Asset == asset {
			return b, true
		}
	}
	return Balance{}, false
}
