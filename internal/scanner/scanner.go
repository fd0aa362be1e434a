// Package scanner implements MarketScanner: the periodic producer that
// discovers candidate symbols from the brokerage's rank endpoints, runs
// PatternDetector against their daily OHLCV, and seeds CandidateStore.
// The scanner never trades — it only seeds.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/feed"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/patterns"
	"github.com/candletrader/engine/internal/risk"
	"github.com/candletrader/engine/internal/store"
	"github.com/google/uuid"
)

// Recorder persists seeded candidates and detected patterns; failures
// are logged and never block the scan.
type Recorder interface {
	RecordCandidate(ctx context.Context, c *candidate.Candidate)
	RecordPattern(ctx context.Context, stockCode string, p candidate.PatternInfo, detectedAt time.Time)
}

// Scanner is the periodic market scanner: a ticker driving bounded
// concurrent symbol workers that pull rank endpoints, refresh OHLCV, and
// run candlestick reversal-pattern detection.
type Scanner struct {
	client   broker.Client
	feed     *feed.PriceFeed
	detector *patterns.Detector
	risk     *risk.Policy
	store    *store.Store
	recorder Recorder
	logger   *logging.Logger
	cfg      Config

	mu          sync.RWMutex
	lastResult  *Result
	tickHandler feed.TickHandler

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// SetTickHandler registers the callback every newly-seeded candidate is
// subscribed with, so price ticks flow back into the store's
// current-price / high-water-mark tracking instead of being dropped on
// the floor between scans.
func (sc *Scanner) SetTickHandler(h feed.TickHandler) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tickHandler = h
}

func (sc *Scanner) currentTickHandler() feed.TickHandler {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tickHandler
}

// New builds a Scanner. recorder may be nil (persistence disabled).
func New(client broker.Client, priceFeed *feed.PriceFeed, detector *patterns.Detector, riskPolicy *risk.Policy, candidateStore *store.Store, recorder Recorder, logger *logging.Logger, cfg Config) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxScanStocks <= 0 {
		cfg.MaxScanStocks = 50
	}
	return &Scanner{
		client:   client,
		feed:     priceFeed,
		detector: detector,
		risk:     riskPolicy,
		store:    candidateStore,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background scan loop at the configured cadence.
func (sc *Scanner) Start() {
	if !sc.cfg.Enabled {
		sc.logf("scanner disabled")
		return
	}
	sc.wg.Add(1)
	go sc.runLoop()
}

// Stop gracefully shuts down the scan loop.
func (sc *Scanner) Stop() {
	close(sc.stopChan)
	sc.wg.Wait()
}

func (sc *Scanner) runLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sc.Tick(context.Background())
		case <-sc.stopChan:
			return
		}
	}
}

// Tick runs a single scan cycle: rank merge -> batched filter+detect ->
// seed. Safe to call directly (e.g. from TradingOrchestrator's loop, or
// manually for testing) in addition to the background ticker.
func (sc *Scanner) Tick(ctx context.Context) {
	start := time.Now()
	scanID := uuid.New().String()

	stocks, err := sc.discover(ctx)
	if err != nil {
		sc.logf("discovery failed: %v", err)
		return
	}
	if len(stocks) > sc.cfg.MaxScanStocks {
		stocks = stocks[:sc.cfg.MaxScanStocks]
	}

	seeded := sc.processBatches(ctx, stocks)

	sc.mu.Lock()
	sc.lastResult = &Result{
		ScanID:           scanID,
		StartTime:        start,
		EndTime:          time.Now(),
		StocksScanned:    len(stocks),
		CandidatesSeeded: seeded,
	}
	sc.mu.Unlock()
}

// LastResult returns the most recent scan's summary.
func (sc *Scanner) LastResult() *Result {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

// discover merges rank_fluctuation and rank_volume across both markets,
// deduped by stock code.
func (sc *Scanner) discover(ctx context.Context) ([]rankedStock, error) {
	seen := make(map[string]bool)
	var out []rankedStock

	markets := []candidate.MarketType{candidate.KOSPI, candidate.KOSDAQ}
	for _, market := range markets {
		gainers, err := sc.client.RankFluctuation(ctx, market, sc.cfg.MinRatePct)
		if err != nil {
			sc.logf("rank_fluctuation(%s) failed: %v", market, err)
		}
		volume, err := sc.client.RankVolume(ctx, market, sc.cfg.MinVolume)
		if err != nil {
			sc.logf("rank_volume(%s) failed: %v", market, err)
		}
		for _, e := range append(gainers, volume...) {
			if e.StockCode == "" || seen[e.StockCode] {
				continue
			}
			seen[e.StockCode] = true
			out = append(out, rankedStock{StockCode: e.StockCode, Market: market})
		}
	}
	return out, nil
}

// processBatches runs the filter+detect+seed pipeline in bounded
// concurrent batches.
func (sc *Scanner) processBatches(ctx context.Context, stocks []rankedStock) int {
	seeded := 0
	var seededMu sync.Mutex

	for i := 0; i < len(stocks); i += sc.cfg.BatchSize {
		end := i + sc.cfg.BatchSize
		if end > len(stocks) {
			end = len(stocks)
		}
		batch := stocks[i:end]

		var wg sync.WaitGroup
		for _, rs := range batch {
			wg.Add(1)
			go func(stock rankedStock) {
				defer wg.Done()
				if sc.processOne(ctx, stock) {
					seededMu.Lock()
					seeded++
					seededMu.Unlock()
				}
			}(rs)
		}
		wg.Wait()

		select {
		case <-sc.stopChan:
			return seeded
		default:
		}
	}
	return seeded
}

// processOne runs the full pipeline for a single symbol: basic filters,
// OHLCV pull, pattern detection, and store seeding.
func (sc *Scanner) processOne(ctx context.Context, stock rankedStock) bool {
	stockCode := stock.StockCode
	price, err := sc.feed.SnapshotPrice(ctx, stockCode)
	if err != nil {
		return false
	}
	if !sc.passesBasicFilters(price) {
		return false
	}

	bars, err := sc.feed.SnapshotOHLCV(ctx, stockCode)
	if err != nil || len(bars) == 0 {
		return false
	}

	patterns := sc.detector.Detect(bars)
	if len(patterns) == 0 {
		return false
	}

	c := candidate.New(stockCode, "", stock.Market)
	c.CurrentPrice = price.CurrentPrice
	c.LastPriceUpdate = price.UpdatedAt
	c.SetOHLCV(bars[0].Date, bars)
	c.SetPatterns(patterns)
	c.Status = candidate.StatusWatching

	primary := patterns[0]
	c.TradeSignal, c.SignalStrength = signalFromConfidence(primary.Confidence)
	c.SignalUpdatedAt = time.Now()
	c.EntryPriority = entryPriority(primary)
	c.Risk = sc.risk.Derive(c, risk.MarketCondition{})

	if err := sc.store.Add(c); err != nil {
		sc.logf("store.Add(%s) rejected: %v", stockCode, err)
		return false
	}

	if err := sc.feed.Subscribe(ctx, stockCode, sc.currentTickHandler()); err != nil {
		sc.logf("subscribe(%s) failed: %v", stockCode, err)
	}

	if sc.recorder != nil {
		sc.recorder.RecordCandidate(ctx, c)
		for _, p := range patterns {
			sc.recorder.RecordPattern(ctx, stockCode, p, time.Now())
		}
	}
	return true
}

func (sc *Scanner) passesBasicFilters(p feed.Price) bool {
	if p.CurrentPrice < sc.cfg.MinPrice || p.CurrentPrice > sc.cfg.MaxPrice {
		return false
	}
	if p.AccumulatedVolume < sc.cfg.MinVolume {
		return false
	}
	return true
}

// signalFromConfidence maps a freshly-detected pattern's confidence to an
// initial trade signal using the same thresholds SignalEvaluator's entry
// path applies to its composite score, since at seed time the pattern
// confidence is the only signal input available.
func signalFromConfidence(confidence float64) (candidate.TradeSignal, float64) {
	strength := confidence * 100
	switch {
	case strength >= 85:
		return candidate.StrongBuy, strength
	case strength >= 70:
		return candidate.Buy, strength
	default:
		return candidate.Hold, strength
	}
}

// entryPriority drives WATCHING eviction order and feeds EntryExecutor's
// priority_multiplier: primary-pattern confidence dominates, with
// strength as a secondary tiebreaker.
func entryPriority(p candidate.PatternInfo) float64 {
	priority := p.Confidence*80 + (p.Strength/100)*20
	if priority > 100 {
		priority = 100
	}
	return priority
}

func (sc *Scanner) logf(format string, args ...interface{}) {
	if sc.logger != nil {
		sc.logger.Info(fmt.Sprintf(format, args...))
	}
}
