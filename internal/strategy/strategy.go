// Package strategy implements the grid trading state machine: building the
// initial ladder, detecting fills by diffing exchange snapshots against the
// locally tracked rungs, reposting counter-orders, and attributing realized
// PnL on round trips.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/exchange"
	"gridbot/internal/grid"
)

// Fill is one completed rung, reported to callers draining the strategy's
// fill history for the status snapshot.
type Fill struct {
	LevelIndex  int
	Side        grid.Side
	Price       decimal.Decimal
	Size        decimal.Decimal
	RealizedPnl decimal.Decimal
}

// GridStrategy owns the rung ladder for one symbol and keeps it in sync
// with the exchange's view of resting orders.
type GridStrategy struct {
	client exchange.Client
	logger *zap.Logger

	symbol     string
	assetIndex int
	cfg        grid.Config

	mu          sync.RWMutex
	levels      []grid.Level
	initialised bool
	realizedPnl decimal.Decimal

	fillsMu  sync.Mutex
	newFills []Fill
}

// New builds a GridStrategy for symbol against client. The strategy owns
// no state until Initialize is called.
func New(client exchange.Client, logger *zap.Logger, symbol string, cfg grid.Config) *GridStrategy {
	return &GridStrategy{
		client: client,
		logger: logger,
		symbol: symbol,
		cfg:    cfg,
	}
}

// Initialize cancels any stale resting orders, builds a fresh grid around
// the current mid price, and places every rung except the one straddling
// mid (that rung sits inside the bid-ask spread and would cross
// immediately). initialEquity is logged for the startup record; the risk
// manager's high-water mark is seeded separately by the orchestrator.
func (s *GridStrategy) Initialize(ctx context.Context, initialEquity decimal.Decimal) error {
	assetIndex, err := s.client.GetAssetIndex(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("strategy: resolve asset index: %w", err)
	}

	cancelled, err := s.client.CancelAllOrders(ctx, assetIndex)
	if err != nil {
		s.logger.Warn("cancel-all during initialize failed", zap.Error(err))
	} else {
		s.logger.Info("cancelled stale orders before initialize", zap.Int("count", cancelled))
	}

	market, err := s.client.GetMarketData(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("strategy: fetch market data: %w", err)
	}

	levels, err := grid.BuildGrid(market.MidPrice, s.cfg)
	if err != nil {
		return fmt.Errorf("strategy: build grid: %w", err)
	}

	s.mu.Lock()
	s.assetIndex = assetIndex
	s.levels = levels
	s.mu.Unlock()

	half := market.MidPrice.Mul(s.cfg.GridSpacingPercent.Div(decimal.NewFromInt(200)))
	for i, lvl := range levels {
		distance := lvl.Price.Sub(market.MidPrice).Abs()
		if distance.LessThan(half) {
			continue // rung straddling mid, would cross the spread immediately
		}
		s.placeLevel(ctx, i)
	}

	s.mu.Lock()
	s.initialised = true
	s.mu.Unlock()

	s.logger.Info("grid initialised",
		zap.String("symbol", s.symbol),
		zap.String("midPrice", market.MidPrice.String()),
		zap.String("initialEquity", initialEquity.String()),
		zap.Int("levels", len(levels)))
	return nil
}

// placeLevel submits the limit order for levels[idx] and records the
// resulting order ID, or logs and leaves the rung Pending on failure.
func (s *GridStrategy) placeLevel(ctx context.Context, idx int) {
	s.mu.RLock()
	lvl := s.levels[idx]
	assetIndex := s.assetIndex
	s.mu.RUnlock()

	if lvl.Status == grid.Active {
		return
	}

	orderID, err := s.client.PlaceLimitOrder(ctx, s.symbol, assetIndex, lvl.Side, lvl.Price, lvl.Size)
	if err != nil {
		s.logger.Warn("order placement failed, level remains pending",
			zap.Int("level", idx),
			zap.String("side", string(lvl.Side)),
			zap.String("price", lvl.Price.String()),
			zap.Error(err))
		return
	}

	now := time.Now().UnixMilli()
	s.mu.Lock()
	s.levels[idx].OrderID = orderID
	s.levels[idx].HasOrderID = true
	s.levels[idx].Status = grid.Active
	s.levels[idx].PlacedAt = now
	s.mu.Unlock()
}

// IsInitialised reports whether Initialize has completed.
func (s *GridStrategy) IsInitialised() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialised
}

// Levels returns a copy of the current rung ladder.
func (s *GridStrategy) Levels() []grid.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]grid.Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// RealizedPnl returns cumulative realized PnL across all completed round
// trips since Initialize.
func (s *GridStrategy) RealizedPnl() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realizedPnl
}

// DrainNewFills returns and clears fills recorded since the last call,
// for feeding the status snapshot's bounded fill history.
func (s *GridStrategy) DrainNewFills() []Fill {
	s.fillsMu.Lock()
	defer s.fillsMu.Unlock()
	out := s.newFills
	s.newFills = nil
	return out
}

// Sync runs the fill-detection protocol for one tick: snapshot locally
// tracked active order IDs before any side effect, diff against the
// exchange's live open-order set, handle whatever disappeared, then
// re-attempt placement for any rung still Pending (covers both earlier
// placement failures and rungs just re-opened by handleFill).
//
// The snapshot must be taken before handleFill places any counter order:
// a counter order acquires a new id absent from liveIds, and if the
// snapshot were taken lazily mid-loop that new id could be misread as a
// second fill of the same tick.
func (s *GridStrategy) Sync(ctx context.Context) error {
	s.mu.RLock()
	trackedIDs := make(map[int64]int, len(s.levels))
	for i, lvl := range s.levels {
		if lvl.Status == grid.Active && lvl.HasOrderID {
			trackedIDs[lvl.OrderID] = i
		}
	}
	s.mu.RUnlock()

	if len(trackedIDs) > 0 {
		liveOrders, err := s.client.GetOpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("strategy: fetch open orders: %w", err)
		}
		liveIDs := make(map[int64]struct{}, len(liveOrders))
		for _, o := range liveOrders {
			liveIDs[o.ID] = struct{}{}
		}

		for orderID, idx := range trackedIDs {
			if _, stillLive := liveIDs[orderID]; stillLive {
				continue
			}
			s.handleFill(ctx, idx)
		}
	}

	s.mu.RLock()
	pending := make([]int, 0)
	for i, lvl := range s.levels {
		if lvl.Status == grid.Pending {
			pending = append(pending, i)
		}
	}
	s.mu.RUnlock()

	for _, idx := range pending {
		s.placeLevel(ctx, idx)
	}
	return nil
}

// handleFill marks a rung Filled and reposts its counter-order on the
// adjacent rung, rewriting that rung's side to the opposite direction.
//
// A buy fill never realizes PnL by itself; it only opens a position that
// the next sell closes. A sell fill realizes
// (filled.price − counterBuyPrice) · filled.size against the current price
// of the rung immediately below, which is the buy leg of the round trip it
// closes, and that rung is then forced back to Buy to open the next cycle.
func (s *GridStrategy) handleFill(ctx context.Context, idx int) {
	now := time.Now().UnixMilli()
	s.mu.Lock()
	filled := s.levels[idx]
	filled.Status = grid.Filled
	filled.FilledAt = now
	s.levels[idx] = filled
	assetIndex := s.assetIndex
	s.mu.Unlock()

	s.logger.Info("level filled",
		zap.Int("level", idx),
		zap.String("side", string(filled.Side)),
		zap.String("price", filled.Price.String()))

	var counterIdx int
	var counterSide grid.Side
	var hasCounter bool
	realizedPnl := decimal.Zero

	switch filled.Side {
	case grid.Buy:
		if _, ok := grid.CounterSellPrice(idx, s.Levels()); ok {
			counterIdx, counterSide, hasCounter = idx+1, grid.Sell, true
		}
	case grid.Sell:
		if counterBuyPrice, ok := grid.CounterBuyPrice(idx, s.Levels()); ok {
			counterIdx, counterSide, hasCounter = idx-1, grid.Buy, true
			realizedPnl = filled.Price.Sub(counterBuyPrice).Mul(filled.Size)
		}
	}

	if !hasCounter {
		// Top or bottom rung filled with no room to repost a counter.
		// Leave it Filled; a risk-driven Reset rebuilds the ladder.
		s.recordFill(idx, filled, realizedPnl)
		return
	}

	s.mu.Lock()
	prevCounter := s.levels[counterIdx]
	s.levels[counterIdx].Side = counterSide
	s.levels[counterIdx].HasOrderID = false
	s.levels[counterIdx].Status = grid.Pending
	counterPrice := s.levels[counterIdx].Price
	s.mu.Unlock()

	// The counter rung may still be resting its previous order if this is a
	// re-fill racing an earlier placement. Cancel it before reposting so the
	// exchange never ends up holding two resting orders on the same rung.
	if prevCounter.Status == grid.Active && prevCounter.HasOrderID {
		if _, err := s.client.CancelOrder(ctx, assetIndex, prevCounter.OrderID); err != nil {
			s.logger.Warn("defensive cancel of surviving counter order failed, continuing anyway",
				zap.Int("level", counterIdx),
				zap.Int64("orderID", prevCounter.OrderID),
				zap.Error(err))
		}
	}

	orderID, err := s.client.PlaceLimitOrder(ctx, s.symbol, assetIndex, counterSide, counterPrice, filled.Size)
	if err != nil {
		s.logger.Warn("counter order placement failed, rung left pending",
			zap.Int("level", counterIdx),
			zap.Error(err))
	} else {
		s.mu.Lock()
		s.levels[counterIdx].Status = grid.Active
		s.levels[counterIdx].OrderID = orderID
		s.levels[counterIdx].HasOrderID = true
		s.levels[counterIdx].PlacedAt = time.Now().UnixMilli()
		s.mu.Unlock()
	}

	if !realizedPnl.IsZero() {
		s.mu.Lock()
		s.levels[idx].RealizedPnl = s.levels[idx].RealizedPnl.Add(realizedPnl)
		s.realizedPnl = s.realizedPnl.Add(realizedPnl)
		s.mu.Unlock()
	}

	s.recordFill(idx, filled, realizedPnl)
}

func (s *GridStrategy) recordFill(idx int, filled grid.Level, realizedPnl decimal.Decimal) {
	s.fillsMu.Lock()
	s.newFills = append(s.newFills, Fill{
		LevelIndex:  idx,
		Side:        filled.Side,
		Price:       filled.Price,
		Size:        filled.Size,
		RealizedPnl: realizedPnl,
	})
	s.fillsMu.Unlock()
}

// Reset cancels every resting order, discards the ladder, and rebuilds it
// around the current mid price. No partial state survives the gap.
func (s *GridStrategy) Reset(ctx context.Context, currentEquity decimal.Decimal) error {
	s.mu.RLock()
	assetIndex := s.assetIndex
	s.mu.RUnlock()

	cancelled, err := s.client.CancelAllOrders(ctx, assetIndex)
	if err != nil {
		s.logger.Warn("cancel-all during reset failed", zap.Error(err))
	}
	s.logger.Info("grid reset", zap.Int("cancelled", cancelled))

	s.mu.Lock()
	s.levels = nil
	s.initialised = false
	s.mu.Unlock()

	return s.Initialize(ctx, currentEquity)
}
