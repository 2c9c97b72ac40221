// Package status maintains the read-only observer snapshot served at
// /api/status: bounded price/PnL histories and a recent-fills ring,
// written once per tick and read concurrently by the HTTP handler. The
// snapshot is never consulted by the trading decision path.
package status

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/grid"
	"gridbot/internal/strategy"
)

const (
	maxHistoryPoints = 120
	maxRecentFills   = 50
)

// Point is one sample in a bounded time series.
type Point struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// FillRecord is one entry in the recent-fills ring, matching the
// observer-facing shape rather than the internal strategy.Fill type.
type FillRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Side        grid.Side       `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Size        decimal.Decimal `json:"size"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
}

// LevelView is the status endpoint's rendering of one grid rung.
type LevelView struct {
	Index  int             `json:"index"`
	Price  decimal.Decimal `json:"price"`
	Side   grid.Side       `json:"side"`
	Status grid.Status     `json:"status"`
	Size   decimal.Decimal `json:"size"`
}

// Snapshot is the full /api/status payload.
type Snapshot struct {
	IsRunning        bool            `json:"isRunning"`
	SyncCount        int64           `json:"syncCount"`
	MidPrice         decimal.Decimal `json:"midPrice"`
	TotalEquity      decimal.Decimal `json:"totalEquity"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	RealizedPnl      decimal.Decimal `json:"realizedPnl"`
	ActiveOrders     int             `json:"activeOrders"`
	FilledLevels     int             `json:"filledLevels"`
	TotalFills       int64           `json:"totalFills"`
	Levels           []LevelView     `json:"levels"`
	RecentFills      []FillRecord    `json:"recentFills"`
	PriceHistory     []Point         `json:"priceHistory"`
	PnlHistory       []Point         `json:"pnlHistory"`
}

// Store holds the current snapshot behind a mutex and the bounded
// histories it is built from. Writers hold the lock for the duration of
// the rewrite; readers copy out.
type Store struct {
	mu sync.RWMutex

	current Snapshot

	priceHistory []Point
	pnlHistory   []Point
	recentFills  []FillRecord
	totalFills   int64
	syncCount    int64
}

// New builds an empty Store; Snapshot() returns an empty Snapshot (with
// empty, non-nil Levels and RecentFills) until the first Update or
// RecordPrice.
func New() *Store {
	return &Store{current: Snapshot{Levels: []LevelView{}, RecentFills: []FillRecord{}}}
}

// Update rewrites the current snapshot from the latest tick's data and
// appends to the bounded histories, dropping the oldest entry once a
// history reaches its cap.
func (s *Store) Update(running bool, market decimal.Decimal, equity, available decimal.Decimal, realizedPnl decimal.Decimal, levels []grid.Level, newFills []strategy.Fill, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncCount++
	s.priceHistory = appendBounded(s.priceHistory, Point{Timestamp: now, Value: market}, maxHistoryPoints)
	s.pnlHistory = appendBounded(s.pnlHistory, Point{Timestamp: now, Value: realizedPnl}, maxHistoryPoints)

	for _, f := range newFills {
		s.totalFills++
		s.recentFills = appendBoundedFills(s.recentFills, FillRecord{
			Timestamp:   now,
			Side:        f.Side,
			Price:       f.Price,
			Size:        f.Size,
			RealizedPnl: f.RealizedPnl,
		}, maxRecentFills)
	}

	active, filled := 0, 0
	views := make([]LevelView, len(levels))
	for i, lvl := range levels {
		views[i] = LevelView{Index: lvl.Index, Price: lvl.Price, Side: lvl.Side, Status: lvl.Status, Size: lvl.Size}
		switch lvl.Status {
		case grid.Active:
			active++
		case grid.Filled:
			filled++
		}
	}

	s.current = Snapshot{
		IsRunning:        running,
		SyncCount:        s.syncCount,
		MidPrice:         market,
		TotalEquity:      equity,
		AvailableBalance: available,
		RealizedPnl:      realizedPnl,
		ActiveOrders:     active,
		FilledLevels:     filled,
		TotalFills:       s.totalFills,
		Levels:           views,
		RecentFills:      append([]FillRecord{}, s.recentFills...),
		PriceHistory:     append([]Point{}, s.priceHistory...),
		PnlHistory:       append([]Point{}, s.pnlHistory...),
	}
}

// RecordPrice appends a price point observed between ticks (from the
// supplementary websocket feed) to the bounded history, independent of
// Update. It touches only the price history and the snapshot's mid price,
// leaving every tick-derived field untouched until the next Update.
func (s *Store) RecordPrice(mid decimal.Decimal, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceHistory = appendBounded(s.priceHistory, Point{Timestamp: ts, Value: mid}, maxHistoryPoints)
	s.current.PriceHistory = append([]Point{}, s.priceHistory...)
	s.current.MidPrice = mid
}

// Snapshot returns a copy of the last-written snapshot. Safe to call
// concurrently with Update; continues serving the last snapshot during
// error quiescence (a tick that fails before calling Update simply never
// overwrites it).
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func appendBounded(history []Point, p Point, max int) []Point {
	history = append(history, p)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

func appendBoundedFills(fills []FillRecord, f FillRecord, max int) []FillRecord {
	fills = append(fills, f)
	if len(fills) > max {
		fills = fills[len(fills)-max:]
	}
	return fills
}
