// Package grid implements the pure price-ladder geometry for the grid
// trading engine: level construction, bounds, counter-level lookup, and the
// a-priori profitability estimate. Nothing in this package touches the
// network or mutable state. Every function is deterministic given its
// inputs, which is what makes it unit-testable without a live exchange.
package grid

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Side is the resting direction of an order on a grid rung.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Status tracks a level's order lifecycle.
type Status string

const (
	Pending   Status = "Pending"
	Active    Status = "Active"
	Filled    Status = "Filled"
	Cancelled Status = "Cancelled"
)

// Level is one rung of the ladder. Side is the order currently resting at
// this rung; it is rewritten in place to the counter direction whenever
// the adjacent rung fills, so a rung's side drifts over the life of the
// grid rather than staying fixed to its initial allocation.
type Level struct {
	Index       int
	Price       decimal.Decimal
	Side        Side
	Size        decimal.Decimal
	Status      Status
	OrderID     int64
	HasOrderID  bool
	PlacedAt    int64 // unix millis, 0 if never placed
	FilledAt    int64 // unix millis, 0 if never filled
	RealizedPnl decimal.Decimal
}

// Config is the geometry-relevant subset of the grid configuration.
type Config struct {
	GridLevels         int
	GridSpacingPercent decimal.Decimal
	OrderSizeBtc       decimal.Decimal
	TickSize           decimal.Decimal
}

// DefaultTickSize matches Hyperliquid's BTC-perp tick size.
var DefaultTickSize = decimal.NewFromFloat(0.1)

func tickSize(cfg Config) decimal.Decimal {
	if cfg.TickSize.IsZero() {
		return DefaultTickSize
	}
	return cfg.TickSize
}

// BuildGrid constructs the full geometric ladder around midPrice.
//
// Levels are indexed [0, N) ascending by price; the lower half starts Buy,
// the upper half starts Sell. Spacing is multiplicative, never additive;
// additive spacing drifts in log-space and biases side allocation after a
// reset.
func BuildGrid(midPrice decimal.Decimal, cfg Config) ([]Level, error) {
	if midPrice.Sign() <= 0 {
		return nil, fmt.Errorf("grid: midPrice must be positive, got %s", midPrice)
	}
	if cfg.GridLevels < 2 {
		return nil, fmt.Errorf("grid: gridLevels must be >= 2, got %d", cfg.GridLevels)
	}

	n := cfg.GridLevels
	m := n / 2
	levels := make([]Level, n)

	for i := 0; i < n; i++ {
		price, err := levelPrice(midPrice, cfg, i, m)
		if err != nil {
			return nil, err
		}
		side := Sell
		if i < m {
			side = Buy
		}
		levels[i] = Level{
			Index:  i,
			Price:  price,
			Side:   side,
			Size:   cfg.OrderSizeBtc,
			Status: Pending,
		}
	}
	return levels, nil
}

// levelPrice computes price_i = round_tick(midPrice * (1+s)^(i-m)).
//
// The exponentiation is the one place decimal math hands off to float64;
// monetary arithmetic stays fixed-point everywhere else. The result is
// immediately rounded back to tick.
func levelPrice(midPrice decimal.Decimal, cfg Config, i, m int) (decimal.Decimal, error) {
	s := cfg.GridSpacingPercent.Div(decimal.NewFromInt(100))
	base := 1.0 + s.InexactFloat64()
	exp := float64(i - m)
	factor := math.Pow(base, exp)
	raw := midPrice.Mul(decimal.NewFromFloat(factor))
	return RoundToTickSize(raw, tickSize(cfg)), nil
}

// GetGridBounds returns the lowest and highest rung prices without
// constructing the full ladder.
func GetGridBounds(midPrice decimal.Decimal, cfg Config) (lower, upper decimal.Decimal, err error) {
	if midPrice.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("grid: midPrice must be positive, got %s", midPrice)
	}
	if cfg.GridLevels < 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("grid: gridLevels must be >= 2, got %d", cfg.GridLevels)
	}
	m := cfg.GridLevels / 2
	lower, err = levelPrice(midPrice, cfg, 0, m)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	upper, err = levelPrice(midPrice, cfg, cfg.GridLevels-1, m)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return lower, upper, nil
}

// CounterSellPrice returns the price one rung above filledBuyIndex, or
// ok=false if that index would fall outside the grid.
func CounterSellPrice(filledBuyIndex int, levels []Level) (price decimal.Decimal, ok bool) {
	idx := filledBuyIndex + 1
	if idx >= len(levels) {
		return decimal.Zero, false
	}
	return levels[idx].Price, true
}

// CounterBuyPrice returns the price one rung below filledSellIndex, or
// ok=false if that index would fall below the grid.
func CounterBuyPrice(filledSellIndex int, levels []Level) (price decimal.Decimal, ok bool) {
	idx := filledSellIndex - 1
	if idx < 0 {
		return decimal.Zero, false
	}
	return levels[idx].Price, true
}

// EstimatedAnnualReturnRate returns a coarse a-priori profitability estimate
// used only to reject configurations with spacing tighter than the
// round-trip taker fee. Returns 0 for degenerate inputs or non-positive
// expected edge.
func EstimatedAnnualReturnRate(midPrice decimal.Decimal, cfg Config, annualOscillations int, takerFee decimal.Decimal) decimal.Decimal {
	if midPrice.Sign() == 0 || cfg.GridLevels == 0 || cfg.OrderSizeBtc.Sign() == 0 {
		return decimal.Zero
	}
	spacingFraction := cfg.GridSpacingPercent.Div(decimal.NewFromInt(100))
	edge := spacingFraction.Sub(takerFee.Mul(decimal.NewFromInt(2)))
	if edge.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(annualOscillations)).Mul(edge).Div(decimal.NewFromInt(int64(cfg.GridLevels)))
}

// RoundToTickSize rounds price to the nearest multiple of tick, ties
// rounding away from zero ("banker's away-from-zero" rounding).
func RoundToTickSize(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() == 0 {
		return price
	}
	ratio := price.Div(tick)
	rounded := ratio.Round(0)

	// decimal.Round uses round-half-away-from-zero already for .5 exactly,
	// but guard explicitly against float drift by re-checking the half case.
	frac := ratio.Sub(ratio.Truncate(0)).Abs()
	half := decimal.NewFromFloat(0.5)
	if frac.Equal(half) {
		if ratio.Sign() >= 0 {
			rounded = ratio.Truncate(0).Add(decimal.NewFromInt(1))
		} else {
			rounded = ratio.Truncate(0).Sub(decimal.NewFromInt(1))
		}
	}
	return rounded.Mul(tick)
}
