// Package orchestrator drives the single-threaded tick loop that ties the
// exchange client, grid strategy, risk manager, and status store together.
// Ticks never overlap; every exchange-facing operation within a tick is
// I/O-bound and absorbed on failure so a transient error never stops
// trading.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gridbot/internal/exchange"
	"gridbot/internal/grid"
	"gridbot/internal/risk"
	"gridbot/internal/status"
	"gridbot/internal/strategy"
)

// Orchestrator owns the tick loop. It holds no exported mutable state;
// everything it coordinates lives in its collaborators.
type Orchestrator struct {
	client   exchange.Client
	strategy *strategy.GridStrategy
	risk     *risk.Manager
	store    *status.Store
	metrics  *status.Metrics
	logger   *zap.Logger

	symbol       string
	assetIndex   int
	syncInterval time.Duration

	gridLower decimal.Decimal
	gridUpper decimal.Decimal

	halted    bool
	tickCount int64
}

// New builds an Orchestrator. Run performs the init sequence before
// entering the loop.
func New(client exchange.Client, strat *strategy.GridStrategy, riskMgr *risk.Manager, store *status.Store, metrics *status.Metrics, logger *zap.Logger, symbol string, syncInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		client:       client,
		strategy:     strat,
		risk:         riskMgr,
		store:        store,
		metrics:      metrics,
		logger:       logger,
		symbol:       symbol,
		syncInterval: syncInterval,
	}
}

// Run performs the startup sequence then loops ticking until ctx is
// cancelled. Cancellation terminates the loop cleanly; open orders are
// deliberately left on the book since the exchange retains them across
// restarts.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start: %w", err)
	}

	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator shutting down, leaving resting orders on the book")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// start resolves the asset index, settles any spot balance into perps
// margin if needed, seeds the risk manager's high-water mark, and builds
// the initial grid.
func (o *Orchestrator) start(ctx context.Context) error {
	assetIndex, err := o.client.GetAssetIndex(ctx, o.symbol)
	if err != nil {
		return fmt.Errorf("resolve asset index: %w", err)
	}
	o.assetIndex = assetIndex

	account, err := o.client.GetAccountState(ctx)
	if err != nil {
		return fmt.Errorf("fetch initial account state: %w", err)
	}

	if account.TotalEquity.IsZero() {
		spotBalance, err := o.client.GetSpotUsdcBalance(ctx)
		if err != nil {
			return fmt.Errorf("fetch spot balance: %w", err)
		}
		if spotBalance.GreaterThan(decimal.Zero) {
			o.logger.Info("perp equity zero, transferring spot balance", zap.String("amount", spotBalance.String()))
			if err := o.client.TransferSpotToPerps(ctx, spotBalance); err != nil {
				return fmt.Errorf("transfer spot to perps: %w", err)
			}
			time.Sleep(2 * time.Second)
			account, err = o.client.GetAccountState(ctx)
			if err != nil {
				return fmt.Errorf("re-fetch account state after transfer: %w", err)
			}
		}
	}

	o.risk.SetInitialEquity(account.TotalEquity)
	if err := o.strategy.Initialize(ctx, account.TotalEquity); err != nil {
		return fmt.Errorf("initialize strategy: %w", err)
	}

	o.recomputeBounds()
	return nil
}

func (o *Orchestrator) recomputeBounds() {
	levels := o.strategy.Levels()
	if len(levels) == 0 {
		return
	}
	o.gridLower = levels[0].Price
	o.gridUpper = levels[len(levels)-1].Price
}

// tick runs one iteration: fetch, risk-evaluate, act, observe. Any error
// is caught, logged with the sync counter, and absorbed. A panic anywhere
// in the tick is recovered at this boundary and logged critical instead of
// crashing the process; the loop continues on the next tick either way.
func (o *Orchestrator) tick(ctx context.Context) {
	o.tickCount++
	correlationID := uuid.New().String()
	logger := o.logger.With(zap.String("correlationId", correlationID), zap.Int64("tick", o.tickCount))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tick panicked, recovered", zap.Any("panic", r))
			if o.metrics != nil {
				o.metrics.TickErrors.Inc()
			}
		}
	}()

	if o.metrics != nil {
		o.metrics.Ticks.Inc()
	}

	market, account, err := o.fetchConcurrently(ctx)
	if err != nil {
		logger.Warn("tick aborted: fetch failed", zap.Error(err))
		if o.metrics != nil {
			o.metrics.TickErrors.Inc()
		}
		return
	}

	verdict := o.risk.Evaluate(account, market)

	switch verdict.Kind {
	case risk.Halt:
		o.halted = true
		logger.Error("halt verdict", zap.String("reason", verdict.Reason))
		if o.metrics != nil {
			o.metrics.HaltEvents.Inc()
		}
		if _, err := o.client.CancelAllOrders(ctx, o.assetIndex); err != nil {
			logger.Warn("cancel-all during halt failed", zap.Error(err))
		}
		o.observe(market, account, false)
		return

	case risk.ResetGrid:
		logger.Warn("reset-grid verdict", zap.String("reason", verdict.Reason))
		if o.metrics != nil {
			o.metrics.ResetEvents.Inc()
		}
		if err := o.strategy.Reset(ctx, account.TotalEquity); err != nil {
			logger.Warn("strategy reset failed", zap.Error(err))
			if o.metrics != nil {
				o.metrics.TickErrors.Inc()
			}
			return
		}
		o.recomputeBounds()
		o.observe(market, account, true)
		return
	}

	o.halted = false

	if risk.ShouldResetGrid(market.MidPrice, o.gridLower, o.gridUpper) {
		logger.Info("drift reset triggered", zap.String("mid", market.MidPrice.String()))
		if o.metrics != nil {
			o.metrics.ResetEvents.Inc()
		}
		if err := o.strategy.Reset(ctx, account.TotalEquity); err != nil {
			logger.Warn("drift reset failed", zap.Error(err))
			if o.metrics != nil {
				o.metrics.TickErrors.Inc()
			}
			return
		}
		o.recomputeBounds()
		o.observe(market, account, true)
		return
	}

	if err := o.strategy.Sync(ctx); err != nil {
		logger.Warn("sync failed", zap.Error(err))
		if o.metrics != nil {
			o.metrics.TickErrors.Inc()
		}
		return
	}

	o.observe(market, account, true)
}

// fetchConcurrently fetches market data and account state in parallel,
// preserving the O1 ordering guarantee that the fetch step as a whole
// precedes risk evaluation.
func (o *Orchestrator) fetchConcurrently(ctx context.Context) (exchange.MarketData, exchange.AccountState, error) {
	var market exchange.MarketData
	var account exchange.AccountState

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		// recover runs on this goroutine's own stack; tick's top-level
		// recover cannot catch a panic raised here since it unwinds a
		// different goroutine.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic fetching market data: %v", r)
			}
		}()
		m, err := o.client.GetMarketData(gctx, o.symbol)
		if err != nil {
			return err
		}
		market = m
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic fetching account state: %v", r)
			}
		}()
		a, err := o.client.GetAccountState(gctx)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return exchange.MarketData{}, exchange.AccountState{}, err
	}
	return market, account, nil
}

func (o *Orchestrator) observe(market exchange.MarketData, account exchange.AccountState, running bool) {
	fills := o.strategy.DrainNewFills()
	levels := o.strategy.Levels()

	if o.metrics != nil {
		o.metrics.Fills.Add(float64(len(fills)))
		o.metrics.RealizedPnl.Set(o.strategy.RealizedPnl().InexactFloat64())
		o.metrics.MidPrice.Set(market.MidPrice.InexactFloat64())
		active := 0
		for _, lvl := range levels {
			if lvl.Status == grid.Active {
				active++
			}
		}
		o.metrics.ActiveOrders.Set(float64(active))
	}

	o.store.Update(running, market.MidPrice, account.TotalEquity, account.AvailableBalance, o.strategy.RealizedPnl(), levels, fills, time.Now())
}

// IsHalted reports whether a Halt verdict has been returned and not yet
// followed by a Continue verdict. ResetGrid verdicts and ticks aborted
// before evaluation leave it unchanged.
func (o *Orchestrator) IsHalted() bool { return o.halted }
