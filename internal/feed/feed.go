// Package feed unifies the engine's two market-data sources: a
// long-lived push stream (ticks, book, decrypted execution notices) and
// a synchronous REST pull path, with the pull path serving as the
// stream's outage fallback.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/logging"
)

var kst = time.FixedZone("KST", 9*60*60)

const (
	maxSubscribedSymbols = 19
	channelsPerSymbol    = 2
	maxChannelBudget     = 41
)

// Price is the pull-path snapshot returned by snapshot_price.
type Price struct {
	StockCode         string
	CurrentPrice      float64
	DayChangePct      float64
	AccumulatedVolume float64
	UpdatedAt         time.Time
}

// TickHandler receives push-path tick updates for a subscribed symbol.
type TickHandler func(Tick)

// ExecutionHandler is the single sink for decrypted execution notices
// for decrypted execution notices.
type ExecutionHandler func(ExecutionNotice)

// PriceFeed is the contract consumers (Scanner, Evaluator, ExitManager,
// ExecutionReconciler) depend on. It never panics on a malformed frame
// and never blocks the orchestrator tick on a stream outage — pull
// always stays available.
type PriceFeed struct {
	client broker.Client
	logger *logging.Logger

	stream *streamSession

	mu          sync.RWMutex
	subscribers map[string]TickHandler
	lastTick    map[string]Tick

	execMu  sync.Mutex
	execFn  ExecutionHandler
}

// Config holds the push-session connection parameters.
type Config struct {
	URL            string
	HTSID          string
	ReconnectLimit int
}

// New builds a PriceFeed. The push session is not started until Start is
// called; until then (or after it fails over) the feed operates in
// pull-only mode transparently.
func New(client broker.Client, cfg Config, logger *logging.Logger) *PriceFeed {
	f := &PriceFeed{
		client:      client,
		logger:      logger,
		subscribers: make(map[string]TickHandler),
		lastTick:    make(map[string]Tick),
	}
	f.stream = newStreamSession(cfg, f.dispatchTick, f.dispatchBook, f.dispatchExecution, logger)
	return f
}

// Start launches the push session's background tasks. Safe to call even
// if the stream URL is unset — the session simply stays degraded and
// every consumer keeps working off pull.
func (f *PriceFeed) Start() {
	f.stream.start()
}

// Stop tears down the push session.
func (f *PriceFeed) Stop() {
	f.stream.stop()
}

// IsPushHealthy reports whether the stream session is currently
// delivering frames (as opposed to degraded pull-only mode).
func (f *PriceFeed) IsPushHealthy() bool {
	return f.stream.isHealthy()
}

// RegisterExecutionHandler sets the single execution-notice sink.
func (f *PriceFeed) RegisterExecutionHandler(h ExecutionHandler) {
	f.execMu.Lock()
	defer f.execMu.Unlock()
	f.execFn = h
}

// Subscribe registers a per-symbol tick callback, deduping if already
// subscribed. Returns an error without mutating state once the 19-symbol
// / 41-channel budget is exhausted.
func (f *PriceFeed) Subscribe(ctx context.Context, stockCode string, onTick TickHandler) error {
	f.mu.Lock()
	if _, exists := f.subscribers[stockCode]; exists {
		f.subscribers[stockCode] = onTick
		f.mu.Unlock()
		return nil
	}
	if len(f.subscribers) >= maxSubscribedSymbols || (len(f.subscribers)+1)*channelsPerSymbol > maxChannelBudget {
		f.mu.Unlock()
		return fmt.Errorf("feed: subscription capacity exceeded (%d/%d symbols)", len(f.subscribers), maxSubscribedSymbols)
	}
	f.subscribers[stockCode] = onTick
	f.mu.Unlock()

	return f.stream.subscribe(ctx, stockCode)
}

// Unsubscribe removes a symbol's tick callback and releases its stream
// channels.
func (f *PriceFeed) Unsubscribe(stockCode string) {
	f.mu.Lock()
	delete(f.subscribers, stockCode)
	delete(f.lastTick, stockCode)
	f.mu.Unlock()
	f.stream.unsubscribe(stockCode)
}

// SnapshotPrice pulls the current price via REST, used for scanning,
// non-subscribed symbols, and stream-outage fallback.
func (f *PriceFeed) SnapshotPrice(ctx context.Context, stockCode string) (Price, error) {
	q, err := f.client.CurrentPrice(ctx, stockCode)
	if err != nil {
		return Price{}, fmt.Errorf("feed: snapshot price %s: %w", stockCode, err)
	}
	return Price{
		StockCode:         stockCode,
		CurrentPrice:      q.CurrentPrice,
		DayChangePct:       q.DayChangePct,
		AccumulatedVolume: q.AccumulatedVolume,
		UpdatedAt:         time.Now(),
	}, nil
}

// SnapshotOHLCV pulls the daily bar series via REST.
func (f *PriceFeed) SnapshotOHLCV(ctx context.Context, stockCode string) ([]candidate.Bar, error) {
	bars, err := f.client.DailyChart(ctx, stockCode, broker.PeriodDay, true)
	if err != nil {
		return nil, fmt.Errorf("feed: snapshot ohlcv %s: %w", stockCode, err)
	}
	return bars, nil
}

// LastPushTick returns the most recent tick received over the push
// session for a symbol, if any — used by consumers that prefer push
// freshness but must tolerate its absence.
func (f *PriceFeed) LastPushTick(stockCode string) (Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.lastTick[stockCode]
	return t, ok
}

func (f *PriceFeed) dispatchTick(t Tick) {
	f.mu.Lock()
	f.lastTick[t.StockCode] = t
	handler := f.subscribers[t.StockCode]
	f.mu.Unlock()
	if handler != nil {
		handler(t)
	}
}

func (f *PriceFeed) dispatchBook(BookTop) {
	// Book records are parsed by the stream session and dropped here: no
	// top-of-book sizes are cached, and no per-symbol callback is
	// registered for book frames in this engine.
}

func (f *PriceFeed) dispatchExecution(n ExecutionNotice) {
	f.execMu.Lock()
	handler := f.execFn
	f.execMu.Unlock()
	if handler != nil {
		handler(n)
	}
}
