package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"gridbot/internal/grid"
)

// Client is the capability set the strategy and orchestrator depend on.
// The production implementation is a signed REST client against
// Hyperliquid; Fake backs every unit test with an in-memory order book.
//
// Callers must tolerate eventual consistency: an order visible in a
// PlaceLimitOrder response may not yet appear in the very next
// GetOpenOrders snapshot.
type Client interface {
	GetMarketData(ctx context.Context, symbol string) (MarketData, error)
	GetAccountState(ctx context.Context) (AccountState, error)
	GetOpenOrders(ctx context.Context) ([]Order, error)

	PlaceLimitOrder(ctx context.Context, symbol string, assetIndex int, side grid.Side, price, size decimal.Decimal) (orderID int64, err error)
	CancelOrder(ctx context.Context, assetIndex int, orderID int64) (bool, error)
	CancelAllOrders(ctx context.Context, assetIndex int) (int, error)

	GetAssetIndex(ctx context.Context, symbol string) (int, error)
	GetSpotUsdcBalance(ctx context.Context) (decimal.Decimal, error)
	TransferSpotToPerps(ctx context.Context, amount decimal.Decimal) error
}
