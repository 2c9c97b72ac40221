// Package exchange defines the capability contract the grid strategy
// depends on, plus a signed REST implementation for Hyperliquid and an
// in-memory fake for tests. The contract is deliberately thin: enough for
// a strategy to build, sync, and tear down a ladder of resting orders.
package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/grid"
)

// MarketData is a normalised market snapshot. Callers may assume MidPrice
// is strictly positive.
type MarketData struct {
	Symbol    string
	MidPrice  decimal.Decimal
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// Position is one signed net exposure on the account.
type Position struct {
	Symbol        string
	Size          decimal.Decimal // signed: +long / -short
	EntryPrice    decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// AccountState is the account-level view used by the risk manager.
type AccountState struct {
	TotalEquity      decimal.Decimal
	AvailableBalance decimal.Decimal
	MarginUsed       decimal.Decimal
	Positions        []Position
}

// OrderStatus mirrors the exchange's order lifecycle tags.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a normalised resting or historical order.
type Order struct {
	ID         int64
	Symbol     string
	Side       grid.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	FilledSize decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
}

// IsFullyFilled reports whether the order's filled quantity has caught up
// to its requested size.
func (o Order) IsFullyFilled() bool {
	return o.FilledSize.GreaterThanOrEqual(o.Size)
}
