// Package orchestrator implements TradingOrchestrator: the single
// supervised loop that drives Scanner -> SignalEvaluator -> EntryExecutor
// -> ExitManager on a fixed cadence, and the startup holdings reconcile.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/entry"
	"github.com/candletrader/engine/internal/exit"
	"github.com/candletrader/engine/internal/feed"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/reconcile"
	"github.com/candletrader/engine/internal/scanner"
	"github.com/candletrader/engine/internal/signal"
	"github.com/candletrader/engine/internal/store"
)

var kst = time.FixedZone("KST", 9*60*60)

// DailyStatsResetter is satisfied by *reconcile.Reconciler.
type DailyStatsResetter interface {
	ResetStats()
}

// Orchestrator is TradingOrchestrator.
type Orchestrator struct {
	client       broker.Client
	feed         *feed.PriceFeed
	store        *store.Store
	scanner      *scanner.Scanner
	evaluator    *signal.Evaluator
	entryExec    *entry.Executor
	exitMgr      *exit.Manager
	reconciler   *reconcile.Reconciler
	logger       *logging.Logger
	scanInterval time.Duration

	stopChan chan struct{}
	done     chan struct{}

	lastRolloverDay int
}

// New builds an Orchestrator. scanInterval <= 0 defaults to 30s, the
// lower bound of the engine's 30-60s scan cadence band.
func New(client broker.Client, priceFeed *feed.PriceFeed, candidateStore *store.Store, sc *scanner.Scanner, ev *signal.Evaluator, en *entry.Executor, ex *exit.Manager, rc *reconcile.Reconciler, logger *logging.Logger, scanInterval time.Duration) *Orchestrator {
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}
	return &Orchestrator{
		client:       client,
		feed:         priceFeed,
		store:        candidateStore,
		scanner:      sc,
		evaluator:    ev,
		entryExec:    en,
		exitMgr:      ex,
		reconciler:   rc,
		logger:       logger,
		scanInterval: scanInterval,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run executes the startup reconcile, registers the execution handler,
// then drives the main loop until ctx is cancelled or Stop is called.
// Blocks until shutdown has finished.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)

	o.reconcileHoldings(ctx)

	o.feed.RegisterExecutionHandler(o.reconciler.Handle)
	o.scanner.SetTickHandler(o.onTick)
	o.feed.Start()
	o.reconciler.Start()
	o.scanner.Start()

	ticker := time.NewTicker(o.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-o.stopChan:
			o.shutdown()
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// Stop requests a graceful shutdown and waits for it to complete.
func (o *Orchestrator) Stop() {
	select {
	case <-o.stopChan:
	default:
		close(o.stopChan)
	}
	<-o.done
}

// tick runs one pass of the scan -> evaluate -> enter -> exit -> cleanup
// phase sequence. Cancellation is cooperative: the shutdown signal is
// checked between every phase.
func (o *Orchestrator) tick(ctx context.Context) {
	o.rolloverIfNewDay()

	if o.shuttingDown() {
		return
	}
	o.scanner.Tick(ctx)

	if o.shuttingDown() {
		return
	}
	o.evaluator.Run(ctx, o.store)

	if o.shuttingDown() {
		return
	}
	o.entryExec.Run(ctx)

	if o.shuttingDown() {
		return
	}
	o.exitMgr.Run(ctx)

	o.store.CleanupOldExited(time.Now())
}

func (o *Orchestrator) shuttingDown() bool {
	select {
	case <-o.stopChan:
		return true
	default:
		return false
	}
}

// rolloverIfNewDay resets the reconciler's daily counters once per
// calendar day (KST), supplementing the Python original's daily_stats
// reset.
func (o *Orchestrator) rolloverIfNewDay() {
	day := time.Now().In(kst).YearDay()
	if o.lastRolloverDay != 0 && o.lastRolloverDay != day {
		o.reconciler.ResetStats()
		o.logf("daily stats rolled over")
	}
	o.lastRolloverDay = day
}

// reconcileHoldings seeds the store with any position already open at the
// brokerage at startup, entering them directly as ENTERED with
// synthesized entry data.
func (o *Orchestrator) reconcileHoldings(ctx context.Context) {
	balance, err := o.client.Balance(ctx)
	if err != nil {
		o.logf("startup balance fetch failed: %v", err)
		return
	}
	for _, h := range balance.Holdings {
		if _, found := o.store.Get(h.StockCode); found {
			continue
		}
		c := candidate.New(h.StockCode, h.StockName, candidate.KOSPI)
		c.Status = candidate.StatusEntered
		c.EntryPrice = h.AvgPrice
		c.EntryQuantity = h.Quantity
		c.CurrentPrice = h.CurrentPrice
		now := time.Now()
		c.EntryTime = &now
		c.Metadata["entry_source"] = "startup_reconciliation"
		if err := o.store.Add(c); err != nil {
			o.logf("startup seed rejected for %s: %v", h.StockCode, err)
			continue
		}
		if err := o.feed.Subscribe(ctx, h.StockCode, o.onTick); err != nil {
			o.logf("startup subscribe failed for %s: %v", h.StockCode, err)
		}
	}
}

// shutdown unsubscribes every tracked symbol and stops the background
// tasks. Pending non-final orders are left as-is by default.
func (o *Orchestrator) shutdown() {
	o.logf("shutting down")
	for _, c := range o.store.All() {
		o.feed.Unsubscribe(c.StockCode)
	}
	o.scanner.Stop()
	o.reconciler.Stop()
	o.feed.Stop()
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(fmt.Sprintf(format, args...))
	}
}
