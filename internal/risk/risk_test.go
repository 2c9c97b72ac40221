package risk

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
)

func testCfg() Config {
	return Config{
		TradingSymbol:      "BTC",
		MaxPositionSizeBtc: decimal.NewFromFloat(0.5),
		MaxDrawdownPercent: decimal.NewFromInt(10),
		MinGridPrice:       decimal.NewFromInt(10000),
		MaxGridPrice:       decimal.NewFromInt(100000),
	}
}

func market(mid float64) exchange.MarketData {
	m := decimal.NewFromFloat(mid)
	return exchange.MarketData{Symbol: "BTC", MidPrice: m, BidPrice: m, AskPrice: m}
}

func TestEvaluateContinueWhenNoAdverseCondition(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	v := m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(10000)}, market(50000))
	if v.Kind != Continue {
		t.Fatalf("expected Continue, got %s (%s)", v.Kind, v.Reason)
	}
}

func TestEvaluateHaltsOnDrawdown(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	v := m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(8900)}, market(50000))
	if v.Kind != Halt {
		t.Fatalf("expected Halt, got %s", v.Kind)
	}
}

func TestEvaluateResetsOnExcessPosition(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	account := exchange.AccountState{
		TotalEquity: decimal.NewFromInt(10000),
		Positions:   []exchange.Position{{Symbol: "BTC", Size: decimal.NewFromFloat(0.6)}},
	}
	v := m.Evaluate(account, market(50000))
	if v.Kind != ResetGrid {
		t.Fatalf("expected ResetGrid, got %s", v.Kind)
	}
}

func TestEvaluateHaltsOutsidePriceRange(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	v := m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(10000)}, market(5000))
	if v.Kind != Halt {
		t.Fatalf("expected Halt for out-of-range price, got %s", v.Kind)
	}
}

func TestEvaluateContinuesAtExactPriceBoundary(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	v := m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(10000)}, market(10000))
	if v.Kind != Continue {
		t.Fatalf("expected Continue at exact lower boundary, got %s", v.Kind)
	}
	v = m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(10000)}, market(100000))
	if v.Kind != Continue {
		t.Fatalf("expected Continue at exact upper boundary, got %s", v.Kind)
	}
}

func TestEvaluateOrderIsDrawdownBeforeRangeBeforePosition(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))
	// Both drawdown and price-range conditions trigger: drawdown must win.
	account := exchange.AccountState{
		TotalEquity: decimal.NewFromInt(8000),
		Positions:   []exchange.Position{{Symbol: "BTC", Size: decimal.NewFromFloat(0.6)}},
	}
	v := m.Evaluate(account, market(5000))
	if v.Kind != Halt || !strings.HasPrefix(v.Reason, "drawdown") {
		t.Fatalf("expected drawdown Halt to win, got %s (%s)", v.Kind, v.Reason)
	}
}

func TestPeakEquityIsMonotonicAndHaltsOnDropFromNewPeak(t *testing.T) {
	m := New(testCfg())
	m.SetInitialEquity(decimal.NewFromInt(10000))

	// Equity rises to a new peak.
	v := m.Evaluate(exchange.AccountState{TotalEquity: decimal.NewFromInt(12000)}, market(50000))
	if v.Kind != Continue {
		t.Fatalf("expected Continue on rise, got %s", v.Kind)
	}
	if !m.PeakEquity().Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("expected peak 12000, got %s", m.PeakEquity())
	}

	// A drop that leaves equity above the original initial equity (10740 >
	// 10000) must still halt, because the drawdown is measured against the
	// new peak, not the original equity.
	dropTo := decimal.NewFromInt(12000).Mul(decimal.NewFromFloat(0.895)) // just past 10% drawdown
	v = m.Evaluate(exchange.AccountState{TotalEquity: dropTo}, market(50000))
	if v.Kind != Halt {
		t.Fatalf("expected Halt after drop from new peak, got %s", v.Kind)
	}
}

func TestShouldResetGridWithinThreshold(t *testing.T) {
	lower := decimal.NewFromInt(48000)
	upper := decimal.NewFromInt(52000)
	if ShouldResetGrid(decimal.NewFromInt(50000), lower, upper) {
		t.Fatal("expected false at centre")
	}
	if ShouldResetGrid(decimal.NewFromInt(51500), lower, upper) {
		t.Fatal("expected false within 80% of half-range")
	}
}

func TestShouldResetGridBeyondThreshold(t *testing.T) {
	lower := decimal.NewFromInt(48000)
	upper := decimal.NewFromInt(52000)
	if !ShouldResetGrid(decimal.NewFromInt(51900), lower, upper) {
		t.Fatal("expected true strictly beyond 80% of half-range")
	}
}
