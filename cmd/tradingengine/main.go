// Command tradingengine wires every component into TradingOrchestrator
// and runs it until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/cache"
	"github.com/candletrader/engine/internal/config"
	"github.com/candletrader/engine/internal/entry"
	"github.com/candletrader/engine/internal/exit"
	"github.com/candletrader/engine/internal/feed"
	"github.com/candletrader/engine/internal/httpapi"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/orchestrator"
	"github.com/candletrader/engine/internal/patterns"
	"github.com/candletrader/engine/internal/persistence"
	"github.com/candletrader/engine/internal/reconcile"
	"github.com/candletrader/engine/internal/risk"
	"github.com/candletrader/engine/internal/scanner"
	tradesignal "github.com/candletrader/engine/internal/signal"
	"github.com/candletrader/engine/internal/store"
	"github.com/candletrader/engine/internal/tradingwindow"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dryRun     bool
)

func main() {
	root := &cobra.Command{
		Use:   "tradingengine",
		Short: "Korean-equity intraday candle-pattern trading engine",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "force the mock brokerage client regardless of config")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dryRun {
		cfg.Trading.DryRun = true
		cfg.Brokerage.MockMode = true
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	window, err := tradingwindow.Parse(cfg.Trading.SessionStart, cfg.Trading.SessionEnd)
	if err != nil {
		return fmt.Errorf("parse trading window: %w", err)
	}

	var pgStore *persistence.Store
	if cfg.Postgres.DSN != "" {
		pgStore, err = persistence.New(ctx, persistence.Config{DSN: cfg.Postgres.DSN, MaxConns: int32(cfg.Postgres.MaxConns)}, logger)
		if err != nil {
			logger.Warn(fmt.Sprintf("postgres unavailable, persistence disabled: %v", err))
			pgStore = nil
		} else {
			defer pgStore.Close()
			logger.Info("postgres connected")
		}
	}

	var cacheSvc *cache.Service
	var configLoader cache.ConfigLoader
	if cfg.Redis.Enabled {
		cacheSvc = cache.NewService(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, logger)
		defer cacheSvc.Close()
		logger.Info("redis cache service initialized")
		if pgStore != nil {
			configLoader = pgStore
		}
	}

	ratios := patterns.DefaultRatioTable()
	var ratioTable patterns.RatioTable = ratios
	if cacheSvc != nil && configLoader != nil {
		ratioTable = cache.NewPatternConfigCache(cacheSvc, configLoader)
	}

	detector := patterns.NewDetector(ratioTable)
	riskPolicy := risk.NewPolicy(ratioTable)
	adjustGuard := risk.NewAdjustmentGuard()
	drawdownGuard := risk.NewDrawdownGuard(0.05)

	var client broker.Client
	if cfg.Brokerage.MockMode || cfg.Trading.DryRun {
		client = broker.NewMockClient(defaultUniverse(), 10_000_000)
		logger.Info("brokerage client running in mock/dry-run mode")
	} else {
		return fmt.Errorf("no live brokerage client configured: set brokerage.mock_mode or pass --dry-run")
	}
	limitedClient := broker.NewLimitedClient(client)

	priceFeed := feed.New(limitedClient, feed.Config{
		URL:            cfg.Stream.URL,
		HTSID:          cfg.Stream.HTSID,
		ReconnectLimit: cfg.Stream.ReconnectLimit,
	}, logger)

	var tracker *cache.PendingOrderTracker
	if cacheSvc != nil {
		tracker = cache.NewPendingOrderTracker(cacheSvc.Client(), time.Duration(cfg.Trading.PendingTimeoutSec)*time.Second, logger)
		tracker.Start()
		defer tracker.Stop()
	}

	candidateStore := store.New(cfg.Risk.WatchCap, cfg.Risk.PositionCap)

	var recorder scanner.Recorder
	if pgStore != nil {
		recorder = pgStore
	}

	sc := scanner.New(limitedClient, priceFeed, detector, riskPolicy, candidateStore, recorder, logger, scanner.Config{
		Enabled:       cfg.Scanner.Enabled,
		ScanInterval:  time.Duration(cfg.Scanner.ScanIntervalSec) * time.Second,
		MaxScanStocks: cfg.Scanner.MaxScanStocks,
		MinRatePct:    cfg.Scanner.MinRatePct,
		MinPrice:      cfg.Scanner.MinPrice,
		MaxPrice:      cfg.Scanner.MaxPrice,
		MinVolume:     cfg.Scanner.MinVolume,
		BatchSize:     cfg.Scanner.BatchSize,
	})

	evaluator := tradesignal.New(detector, riskPolicy, adjustGuard, window, tradesignal.Thresholds{
		StrongBuy:            cfg.Risk.StrongBuyThreshold,
		Buy:                  cfg.Risk.BuyThreshold,
		StrongSell:           cfg.Risk.StrongSellThreshold,
		Sell:                 cfg.Risk.SellThreshold,
		MinPatternConfidence: cfg.Risk.MinPatternConfidence,
	}, logger)

	entryExec := entry.New(limitedClient, candidateStore, trackerOrNil(tracker), logger, entry.Config{
		MinOrderInterval:     time.Duration(cfg.Trading.MinOrderIntervalSec) * time.Second,
		MinInvestmentKRW:     cfg.Risk.MinInvestmentKRW,
		MaxSingleInvestRatio: cfg.Risk.MaxSingleInvestRatio,
		PositionCap:          cfg.Risk.PositionCap,
	})
	entryExec.SetGuard(drawdownGuard)

	exitMgr := exit.New(limitedClient, candidateStore, trackerOrNil(tracker), window, logger, exit.Config{
		MinProfitForTimeExit: cfg.Trading.MinProfitForTimeExit,
	})

	var tradeRecorder reconcile.Recorder
	if pgStore != nil {
		tradeRecorder = pgStore
	}
	reconciler := reconcile.New(limitedClient, candidateStore, tradeRecorder, orderTrackerOrNil(tracker), logger)
	reconciler.SetDrawdownRecorder(drawdownGuard)

	orch := orchestrator.New(limitedClient, priceFeed, candidateStore, sc, evaluator, entryExec, exitMgr, reconciler, logger, time.Duration(cfg.Trading.TickIntervalSec)*time.Second)

	var httpServer *httpapi.Server
	if cfg.HTTP.Enabled {
		httpServer = httpapi.New(candidateStore, reconciler, healthCheckerOrNil(pgStore), logger, httpapi.Config{
			Addr:           cfg.HTTP.Addr,
			ProductionMode: !cfg.Trading.DryRun,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		})
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Warn(fmt.Sprintf("status api stopped: %v", err))
			}
		}()
	}

	go orch.Run(ctx)
	logger.Info("trading orchestrator started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	orch.Stop()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(fmt.Sprintf("status api shutdown error: %v", err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// trackerOrNil returns a nil entry.Tracker interface value (not a nil
// *cache.PendingOrderTracker boxed in a non-nil interface) when Redis is
// disabled, so entry.Executor's "tracker != nil" checks behave correctly.
func trackerOrNil(t *cache.PendingOrderTracker) entry.Tracker {
	if t == nil {
		return nil
	}
	return t
}

func orderTrackerOrNil(t *cache.PendingOrderTracker) reconcile.OrderTracker {
	if t == nil {
		return nil
	}
	return t
}

func healthCheckerOrNil(s *persistence.Store) httpapi.HealthChecker {
	if s == nil {
		return nil
	}
	return s
}

// defaultUniverse seeds the mock brokerage client's synthetic rank
// response when no live rank endpoint is configured.
func defaultUniverse() []string {
	return []string{"005930", "000660", "035420", "051910", "006400", "035720", "005380", "068270"}
}
