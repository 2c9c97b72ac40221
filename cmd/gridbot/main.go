package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/feed"
	"gridbot/internal/grid"
	"gridbot/internal/orchestrator"
	"gridbot/internal/risk"
	"gridbot/internal/status"
	"gridbot/internal/strategy"
)

func main() {
	tomlPath := flag.String("config", "", "optional path to a TOML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*tomlPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	client, err := exchange.NewHyperliquid(cfg.PrivateKeyHex, cfg.IsMainnet, logger)
	if err != nil {
		logger.Fatal("exchange client construction failed", zap.Error(err))
	}

	gridCfg := grid.Config{
		GridLevels:         cfg.GridLevels,
		GridSpacingPercent: cfg.GridSpacingPercent,
		OrderSizeBtc:       cfg.OrderSizeBtc,
		TickSize:           grid.DefaultTickSize,
	}
	strat := strategy.New(client, logger, cfg.Symbol, gridCfg)

	riskMgr := risk.New(risk.Config{
		TradingSymbol:      cfg.Symbol,
		MaxPositionSizeBtc: cfg.MaxPositionSizeBtc,
		MaxDrawdownPercent: cfg.MaxDrawdownPercent,
		MinGridPrice:       cfg.MinGridPrice,
		MaxGridPrice:       cfg.MaxGridPrice,
	})

	store := status.New()
	registry := prometheus.NewRegistry()
	metrics := status.NewMetrics(registry)

	orch := orchestrator.New(client, strat, riskMgr, store, metrics, logger, cfg.Symbol, cfg.SyncInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/api/status", store.Handler())
	mux.Handle("/metrics", status.MetricsHandler(registry))
	httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: mux}

	go func() {
		logger.Info("status server listening", zap.String("addr", cfg.StatusAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server stopped", zap.Error(err))
		}
	}()

	go func() {
		f := feed.New(cfg.Symbol, cfg.IsMainnet, logger, func(_ string, mid decimal.Decimal, ts time.Time) {
			store.RecordPrice(mid, ts)
		})
		if err := f.Run(ctx); err != nil {
			logger.Warn("price feed stopped", zap.Error(err))
		}
	}()

	logger.Info("gridbot starting",
		zap.String("symbol", cfg.Symbol),
		zap.Bool("mainnet", cfg.IsMainnet),
		zap.Int("gridLevels", cfg.GridLevels))

	if err := orch.Run(ctx); err != nil {
		logger.Fatal("orchestrator exited with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown error", zap.Error(err))
	}

	logger.Info("gridbot stopped")
}
