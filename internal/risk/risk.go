// Package risk implements the grid engine's supervisory guards: a
// high-water-mark drawdown check, a price-range check, and a net-position
// check, evaluated in that fixed order every tick.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/exchange"
)

// VerdictKind tags the outcome of one risk evaluation.
type VerdictKind string

const (
	Continue  VerdictKind = "continue"
	ResetGrid VerdictKind = "reset_grid"
	Halt      VerdictKind = "halt"
)

// Verdict is the tagged-union result of Evaluate. Reason is empty for
// Continue.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Config holds the guard thresholds.
type Config struct {
	TradingSymbol      string
	MaxPositionSizeBtc decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MinGridPrice       decimal.Decimal
	MaxGridPrice       decimal.Decimal
}

// Manager tracks peak equity across the process lifetime and evaluates
// the ordered guard chain on demand.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	peakEquity decimal.Decimal
}

// New builds a Manager with no peak equity set; call SetInitialEquity
// before the first Evaluate.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// SetInitialEquity seeds the high-water mark. Only the Manager reads or
// writes peakEquity thereafter.
func (m *Manager) SetInitialEquity(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peakEquity = equity
}

// PeakEquity returns the current high-water mark.
func (m *Manager) PeakEquity() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakEquity
}

// Evaluate runs the ordered guard chain: drawdown, then price-range, then
// net position. The first trigger wins.
func (m *Manager) Evaluate(account exchange.AccountState, market exchange.MarketData) Verdict {
	m.mu.Lock()
	if account.TotalEquity.GreaterThan(m.peakEquity) {
		m.peakEquity = account.TotalEquity
	}
	peak := m.peakEquity
	m.mu.Unlock()

	if peak.GreaterThan(decimal.Zero) {
		drawdown := peak.Sub(account.TotalEquity).Div(peak)
		threshold := m.cfg.MaxDrawdownPercent.Div(decimal.NewFromInt(100))
		if drawdown.GreaterThanOrEqual(threshold) {
			return Verdict{Kind: Halt, Reason: fmt.Sprintf(
				"drawdown %.4f%% >= max %.4f%% (peak=%s, equity=%s)",
				drawdown.Mul(decimal.NewFromInt(100)).InexactFloat64(),
				m.cfg.MaxDrawdownPercent.InexactFloat64(),
				peak, account.TotalEquity,
			)}
		}
	}

	if market.MidPrice.LessThan(m.cfg.MinGridPrice) || market.MidPrice.GreaterThan(m.cfg.MaxGridPrice) {
		return Verdict{Kind: Halt, Reason: fmt.Sprintf(
			"mid price %s outside [%s, %s]", market.MidPrice, m.cfg.MinGridPrice, m.cfg.MaxGridPrice,
		)}
	}

	net := decimal.Zero
	for _, p := range account.Positions {
		if p.Symbol == m.cfg.TradingSymbol {
			net = net.Add(p.Size)
		}
	}
	if net.Abs().GreaterThan(m.cfg.MaxPositionSizeBtc) {
		return Verdict{Kind: ResetGrid, Reason: fmt.Sprintf(
			"net position %s exceeds max %s", net, m.cfg.MaxPositionSizeBtc,
		)}
	}

	return Verdict{Kind: Continue}
}

// ShouldResetGrid reports whether currentPrice has drifted far enough from
// the grid's centre to warrant re-centring: strictly beyond 80% of the
// half-range. The 0.8 factor avoids thrashing right at the grid's edge
// while still re-centring before the outer rungs go stale.
func ShouldResetGrid(currentPrice, lower, upper decimal.Decimal) bool {
	centre := lower.Add(upper).Div(decimal.NewFromInt(2))
	halfRange := upper.Sub(lower).Div(decimal.NewFromInt(2))
	threshold := halfRange.Mul(decimal.NewFromFloat(0.8))
	return currentPrice.Sub(centre).Abs().GreaterThan(threshold)
}
