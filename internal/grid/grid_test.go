package grid

import (
	"testing"

	"github.com/shopspring/decimal"
)

func cfg(levels int, spacingPct, orderSize float64) Config {
	return Config{
		GridLevels:         levels,
		GridSpacingPercent: decimal.NewFromFloat(spacingPct),
		OrderSizeBtc:       decimal.NewFromFloat(orderSize),
		TickSize:           decimal.NewFromFloat(0.1),
	}
}

func TestBuildGridLevelCount(t *testing.T) {
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 10 {
		t.Fatalf("expected 10 levels, got %d", len(levels))
	}
}

func TestBuildGridStrictlyAscending(t *testing.T) {
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(levels); i++ {
		if !levels[i].Price.GreaterThan(levels[i-1].Price) {
			t.Fatalf("levels not strictly ascending at index %d: %s <= %s", i, levels[i].Price, levels[i-1].Price)
		}
	}
}

func TestBuildGridSpacingTolerance(t *testing.T) {
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lowBound := decimal.NewFromFloat(1.01 * 0.999)
	highBound := decimal.NewFromFloat(1.01 * 1.001)
	for i := 1; i < len(levels); i++ {
		ratio := levels[i].Price.Div(levels[i-1].Price)
		if ratio.LessThan(lowBound) || ratio.GreaterThan(highBound) {
			t.Fatalf("ratio %s at index %d outside tolerance [%s, %s]", ratio, i, lowBound, highBound)
		}
	}
}

func TestBuildGridSideAllocation(t *testing.T) {
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mid := 10 / 2
	for i, lvl := range levels {
		if i < mid && lvl.Side != Buy {
			t.Fatalf("level %d expected Buy, got %s", i, lvl.Side)
		}
		if i >= mid && lvl.Side != Sell {
			t.Fatalf("level %d expected Sell, got %s", i, lvl.Side)
		}
	}
}

func TestBuildGridInitialState(t *testing.T) {
	size := decimal.NewFromFloat(0.01)
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, lvl := range levels {
		if lvl.Status != Pending {
			t.Fatalf("level %d expected Pending, got %s", i, lvl.Status)
		}
		if !lvl.Size.Equal(size) {
			t.Fatalf("level %d expected size %s, got %s", i, size, lvl.Size)
		}
	}
}

func TestBuildGridInvalidArgument(t *testing.T) {
	if _, err := BuildGrid(decimal.Zero, cfg(10, 1, 0.01)); err == nil {
		t.Fatal("expected error for non-positive midPrice")
	}
	if _, err := BuildGrid(decimal.NewFromInt(50000), cfg(1, 1, 0.01)); err == nil {
		t.Fatal("expected error for gridLevels < 2")
	}
}

func TestGetGridBounds(t *testing.T) {
	mid := decimal.NewFromInt(50000)
	lower, upper, err := GetGridBounds(mid, cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lower.LessThan(mid) || !mid.LessThan(upper) {
		t.Fatalf("expected lower < mid < upper, got lower=%s mid=%s upper=%s", lower, mid, upper)
	}
}

func TestCounterPricesAtEdges(t *testing.T) {
	levels, err := BuildGrid(decimal.NewFromInt(50000), cfg(10, 1, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := CounterSellPrice(len(levels)-1, levels); ok {
		t.Fatal("expected no counter sell price at top rung")
	}
	if _, ok := CounterBuyPrice(0, levels); ok {
		t.Fatal("expected no counter buy price at bottom rung")
	}
	price, ok := CounterSellPrice(3, levels)
	if !ok || !price.Equal(levels[4].Price) {
		t.Fatalf("expected counter sell price %s, got %s (ok=%v)", levels[4].Price, price, ok)
	}
	price, ok = CounterBuyPrice(6, levels)
	if !ok || !price.Equal(levels[5].Price) {
		t.Fatalf("expected counter buy price %s, got %s (ok=%v)", levels[5].Price, price, ok)
	}
}

func TestEstimatedAnnualReturnRateDegenerate(t *testing.T) {
	rate := EstimatedAnnualReturnRate(decimal.Zero, cfg(10, 1, 0.01), 300, decimal.NewFromFloat(0.00045))
	if !rate.IsZero() {
		t.Fatalf("expected zero rate for zero midPrice, got %s", rate)
	}
}

func TestEstimatedAnnualReturnRateUnprofitable(t *testing.T) {
	// spacing 0.05% is tighter than 2*0.045% taker fee round trip.
	rate := EstimatedAnnualReturnRate(decimal.NewFromInt(50000), cfg(10, 0.05, 0.01), 300, decimal.NewFromFloat(0.00045))
	if rate.Sign() > 0 {
		t.Fatalf("expected non-positive rate for sub-fee spacing, got %s", rate)
	}
}

func TestEstimatedAnnualReturnRateProfitable(t *testing.T) {
	rate := EstimatedAnnualReturnRate(decimal.NewFromInt(50000), cfg(10, 1, 0.01), 300, decimal.NewFromFloat(0.00045))
	if rate.Sign() <= 0 {
		t.Fatalf("expected positive rate for wide spacing, got %s", rate)
	}
}

func TestRoundToTickSizeTiesAwayFromZero(t *testing.T) {
	tick := decimal.NewFromFloat(0.1)
	got := RoundToTickSize(decimal.NewFromFloat(50000.05), tick)
	want := decimal.NewFromFloat(50000.1)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRoundToTickSizeNearest(t *testing.T) {
	tick := decimal.NewFromFloat(0.1)
	got := RoundToTickSize(decimal.NewFromFloat(50000.04), tick)
	want := decimal.NewFromFloat(50000.0)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
