package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/grid"
)

// Fake is an in-memory Client backing strategy and orchestrator tests. It
// never talks to a network; fills are injected directly via Fill.
type Fake struct {
	mu sync.Mutex

	market  MarketData
	account AccountState
	orders  map[int64]Order
	nextID  int64

	assetIndexes map[string]int
	spotBalance  decimal.Decimal

	// Failure injection hooks. Each, if set, is called before the
	// corresponding operation and can force an error.
	FailPlaceOrder  func() error
	FailCancelOrder func() error
	FailGetOrders   func() error
	FailGetMarket   func() error
	FailGetAccount  func() error
}

// NewFake builds a Fake seeded with the given market and account state.
func NewFake(market MarketData, account AccountState) *Fake {
	return &Fake{
		market:       market,
		account:      account,
		orders:       make(map[int64]Order),
		nextID:       1,
		assetIndexes: map[string]int{market.Symbol: 0},
		spotBalance:  decimal.Zero,
	}
}

// SetMarketData updates the market snapshot returned by GetMarketData.
func (f *Fake) SetMarketData(m MarketData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.market = m
}

// SetAccountState updates the account snapshot returned by GetAccountState.
func (f *Fake) SetAccountState(a AccountState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = a
}

// Fill marks a resting order as fully filled, as if matched by the book.
func (f *Fake) Fill(orderID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false
	}
	o.FilledSize = o.Size
	o.Status = OrderFilled
	f.orders[orderID] = o
	return true
}

// GetMarketData returns the current fake market snapshot.
func (f *Fake) GetMarketData(ctx context.Context, symbol string) (MarketData, error) {
	if f.FailGetMarket != nil {
		if err := f.FailGetMarket(); err != nil {
			return MarketData{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.market, nil
}

// GetAccountState returns the current fake account snapshot.
func (f *Fake) GetAccountState(ctx context.Context) (AccountState, error) {
	if f.FailGetAccount != nil {
		if err := f.FailGetAccount(); err != nil {
			return AccountState{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

// GetOpenOrders returns every order not yet fully filled or cancelled.
func (f *Fake) GetOpenOrders(ctx context.Context) ([]Order, error) {
	if f.FailGetOrders != nil {
		if err := f.FailGetOrders(); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Order, 0, len(f.orders))
	for _, o := range f.orders {
		if o.Status == OrderOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

// PlaceLimitOrder records a new resting order and returns its fake ID.
func (f *Fake) PlaceLimitOrder(ctx context.Context, symbol string, assetIndex int, side grid.Side, price, size decimal.Decimal) (int64, error) {
	if f.FailPlaceOrder != nil {
		if err := f.FailPlaceOrder(); err != nil {
			return 0, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.orders[id] = Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    OrderOpen,
		CreatedAt: time.Now(),
	}
	return id, nil
}

// CancelOrder marks an order cancelled if it is still open.
func (f *Fake) CancelOrder(ctx context.Context, assetIndex int, orderID int64) (bool, error) {
	if f.FailCancelOrder != nil {
		if err := f.FailCancelOrder(); err != nil {
			return false, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != OrderOpen {
		return false, nil
	}
	o.Status = OrderCancelled
	f.orders[orderID] = o
	return true, nil
}

// CancelAllOrders cancels every open order, tolerating none existing.
func (f *Fake) CancelAllOrders(ctx context.Context, assetIndex int) (int, error) {
	f.mu.Lock()
	ids := make([]int64, 0, len(f.orders))
	for id, o := range f.orders {
		if o.Status == OrderOpen {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()

	count := 0
	for _, id := range ids {
		ok, err := f.CancelOrder(ctx, assetIndex, id)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// GetAssetIndex returns a stable fake asset index for symbol.
func (f *Fake) GetAssetIndex(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.assetIndexes[symbol]
	if !ok {
		return 0, fmt.Errorf("fake: unknown symbol %q", symbol)
	}
	return idx, nil
}

// GetSpotUsdcBalance returns the fake spot USDC balance.
func (f *Fake) GetSpotUsdcBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spotBalance, nil
}

// TransferSpotToPerps moves the requested amount out of the fake spot
// balance unconditionally.
func (f *Fake) TransferSpotToPerps(ctx context.Context, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spotBalance = f.spotBalance.Sub(amount)
	return nil
}

var _ Client = (*Fake)(nil)
var _ Client = (*Hyperliquid)(nil)
