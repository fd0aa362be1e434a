// Package reconcile implements ExecutionReconciler: the sink for
// decrypted execution notices, and the periodic balance cross-check that
// catches positions the brokerage closed out from under the engine.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/cache"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/feed"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OrderTracker is the pending-order side of ExecutionReconciler's
// timeout handling: Untrack on fill, and the handler registered against
// SetTimeoutHandler cancels orders that outlived the pending-order
// max age. Satisfied by *cache.PendingOrderTracker; nil disables both.
type OrderTracker interface {
	Untrack(ctx context.Context, stockCode, orderNo string)
	SetTimeoutHandler(fn cache.TimeoutFunc)
}

const balanceCrossCheckInterval = 5 * time.Minute

// Recorder persists fills to history; failures are logged and never
// block reconciliation.
type Recorder interface {
	RecordPositionOpen(ctx context.Context, c *candidate.Candidate)
	RecordPositionClose(ctx context.Context, c *candidate.Candidate)
}

// DailyStats accumulates the day's trade counters, reset by the
// orchestrator's daily rollover (supplemented from the Python original's daily_stats dict).
type DailyStats struct {
	TradesOpened int
	TradesClosed int
	WinCount     int
	RealizedPnL  float64
}

// Reconciler is ExecutionReconciler.
type Reconciler struct {
	client   broker.Client
	store    *store.Store
	recorder Recorder
	tracker  OrderTracker
	logger   *logging.Logger
	zlog     zerolog.Logger

	mu    sync.Mutex
	stats DailyStats

	drawdown DrawdownRecorder

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// DrawdownRecorder is notified of every realized close so a daily
// drawdown kill switch can track cumulative P&L. Satisfied by
// *risk.DrawdownGuard; nil disables it.
type DrawdownRecorder interface {
	RegisterClose(realizedPnL float64)
}

// New builds a Reconciler. recorder and tracker may both be nil
// (persistence and pending-order tracking disabled respectively).
func New(client broker.Client, st *store.Store, recorder Recorder, tracker OrderTracker, logger *logging.Logger) *Reconciler {
	r := &Reconciler{
		client:   client,
		store:    st,
		recorder: recorder,
		tracker:  tracker,
		logger:   logger,
		zlog:     log.With().Str("component", "reconcile").Logger(),
	}
	if tracker != nil {
		tracker.SetTimeoutHandler(r.handleOrderTimeout)
	}
	return r
}

// SetDrawdownRecorder attaches the daily drawdown guard. nil disables it.
func (r *Reconciler) SetDrawdownRecorder(d DrawdownRecorder) {
	r.drawdown = d
}

// handleOrderTimeout is invoked for any buy/sell order still PENDING_ORDER
// past its max age. It cancels the stale order on the gateway and reverts
// the candidate to its pre-order status so the next tick re-evaluates it;
// a cancel failure means the order likely already filled, so the position
// is left for the execution notice or the balance cross-check to settle.
func (r *Reconciler) handleOrderTimeout(info cache.PendingOrderInfo) {
	ctx := context.Background()
	if err := r.client.CancelOrder(ctx, info.OrderNo); err != nil {
		r.zlog.Warn().Err(err).Str("stock_code", info.StockCode).Str("order_no", info.OrderNo).
			Msg("pending order timeout: cancel failed, leaving for reconciliation")
		return
	}

	revertTo := candidate.StatusWatching
	if info.Side == "SELL" {
		revertTo = candidate.StatusEntered
	}
	err := r.store.Mutate(info.StockCode, func(live *candidate.Candidate) error {
		if live.Status != candidate.StatusPendingOrder {
			return nil
		}
		live.PendingBuyOrderNo = ""
		live.PendingSellOrderNo = ""
		live.PendingOrderTime = nil
		delete(live.Metadata, "pending_buy_quantity")
		delete(live.Metadata, "pending_sell_quantity")
		live.Status = revertTo
		return nil
	})
	if err != nil {
		r.zlog.Warn().Err(err).Str("stock_code", info.StockCode).Msg("pending order timeout: revert failed")
		return
	}
	r.zlog.Warn().Str("stock_code", info.StockCode).Str("order_no", info.OrderNo).
		Msg("pending order timed out, cancelled and reverted")
}

// Handle is the feed.ExecutionHandler registered against PriceFeed.
// Notices that aren't real fills never reach here — feed already filters
// on fill-flag and side.
func (r *Reconciler) Handle(notice feed.ExecutionNotice) {
	ctx := context.Background()

	c, found := r.store.Get(notice.StockCode)
	if !found {
		if notice.Side == feed.SideBuy {
			r.synthesizeEntered(ctx, notice)
		}
		return
	}

	switch notice.Side {
	case feed.SideBuy:
		r.handleBuyFill(ctx, c, notice)
	case feed.SideSell:
		r.handleSellFill(ctx, c, notice)
	}
}

// synthesizeEntered handles a buy fill for a symbol the engine isn't
// tracking — a manual purchase made outside the engine, reconciled
// directly into ENTERED.
func (r *Reconciler) synthesizeEntered(ctx context.Context, notice feed.ExecutionNotice) {
	c := candidate.New(notice.StockCode, "", candidate.KOSPI)
	c.Status = candidate.StatusEntered
	c.EntryPrice = notice.Price
	c.EntryQuantity = notice.Quantity
	c.CurrentPrice = notice.Price
	entryTime := notice.FilledAt
	c.EntryTime = &entryTime
	c.BuyExecutionTime = &entryTime
	c.Metadata["entry_source"] = "manual_reconciliation"

	if err := r.store.Add(c); err != nil {
		r.zlog.Warn().Err(err).Str("stock_code", notice.StockCode).Msg("synthesize entered candidate rejected")
		return
	}

	r.mu.Lock()
	r.stats.TradesOpened++
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordPositionOpen(ctx, c)
	}
	r.zlog.Info().Str("stock_code", notice.StockCode).Msg("synthesized manual purchase as ENTERED")
}

func (r *Reconciler) handleBuyFill(ctx context.Context, c *candidate.Candidate, notice feed.ExecutionNotice) {
	if c.Status != candidate.StatusPendingOrder || c.PendingOrderType != candidate.PendingBuy {
		return
	}

	var recorded *candidate.Candidate
	err := r.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		live.EntryQuantity += notice.Quantity

		expected, _ := live.Metadata["pending_buy_quantity"].(int)
		if expected > 0 && live.EntryQuantity < expected {
			// Partial fill: stays in PENDING_ORDER until complete or the
			// pending-order timeout handler cancels the order.
			return nil
		}

		live.EntryPrice = notice.Price
		live.BuyExecutionTime = &notice.FilledAt
		entryTime := notice.FilledAt
		live.EntryTime = &entryTime
		live.PendingBuyOrderNo = ""
		live.PendingOrderTime = nil
		if !candidate.CanTransition(live.Status, candidate.StatusEntered) {
			return fmt.Errorf("reconcile: %s cannot transition %s -> ENTERED", live.StockCode, live.Status)
		}
		live.Status = candidate.StatusEntered
		recorded = live.Clone()
		return nil
	})
	if err != nil {
		r.zlog.Warn().Err(err).Str("stock_code", c.StockCode).Msg("buy fill reconciliation failed")
		return
	}
	if recorded == nil {
		return // partial fill, not yet complete
	}

	if r.tracker != nil {
		r.tracker.Untrack(ctx, c.StockCode, c.PendingBuyOrderNo)
	}

	r.mu.Lock()
	r.stats.TradesOpened++
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordPositionOpen(ctx, recorded)
	}
}

func (r *Reconciler) handleSellFill(ctx context.Context, c *candidate.Candidate, notice feed.ExecutionNotice) {
	if c.Status != candidate.StatusPendingOrder || c.PendingOrderType != candidate.PendingSell {
		return
	}

	var recorded *candidate.Candidate
	err := r.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		live.ExitPrice = notice.Price
		exitTime := notice.FilledAt
		live.ExitTime = &exitTime
		if reason, ok := live.Metadata["exit_reason_pending"].(string); ok {
			live.ExitReason = reason
		}
		if live.EntryPrice > 0 && live.EntryQuantity > 0 {
			live.RealizedPnL = (notice.Price - live.EntryPrice) * float64(live.EntryQuantity)
			live.RealizedPnLPct = (notice.Price - live.EntryPrice) / live.EntryPrice
		}
		live.Metadata["final_exit_confirmed"] = true
		live.PendingSellOrderNo = ""
		live.PendingOrderTime = nil
		if !candidate.CanTransition(live.Status, candidate.StatusExited) {
			return fmt.Errorf("reconcile: %s cannot transition %s -> EXITED", live.StockCode, live.Status)
		}
		live.Status = candidate.StatusExited
		recorded = live.Clone()
		return nil
	})
	if err != nil {
		r.zlog.Warn().Err(err).Str("stock_code", c.StockCode).Msg("sell fill reconciliation failed")
		return
	}

	if r.tracker != nil {
		r.tracker.Untrack(ctx, c.StockCode, c.PendingSellOrderNo)
	}

	r.mu.Lock()
	r.stats.TradesClosed++
	r.stats.RealizedPnL += recorded.RealizedPnL
	if recorded.RealizedPnL > 0 {
		r.stats.WinCount++
	}
	r.mu.Unlock()

	if r.drawdown != nil {
		r.drawdown.RegisterClose(recorded.RealizedPnL)
	}
	if r.recorder != nil {
		r.recorder.RecordPositionClose(ctx, recorded)
	}
}

// Stats returns a snapshot of today's counters.
func (r *Reconciler) Stats() DailyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStats zeroes the daily counters, called by the orchestrator at
// day rollover.
func (r *Reconciler) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = DailyStats{}
}

// Start launches the periodic balance cross-check: for each ENTERED
// candidate not in holdings, mark EXITED with
// auto_exit_reason=holding_missing.
func (r *Reconciler) Start() {
	r.stopChan = make(chan struct{})
	r.wg.Add(1)
	go r.crossCheckLoop()
}

// Stop halts the cross-check loop.
func (r *Reconciler) Stop() {
	if r.stopChan == nil {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Reconciler) crossCheckLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(balanceCrossCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.crossCheckOnce(context.Background())
		case <-r.stopChan:
			return
		}
	}
}

func (r *Reconciler) crossCheckOnce(ctx context.Context) {
	balance, err := r.client.Balance(ctx)
	if err != nil {
		r.zlog.Warn().Err(err).Msg("balance cross-check fetch failed")
		return
	}
	held := make(map[string]bool, len(balance.Holdings))
	for _, h := range balance.Holdings {
		held[h.StockCode] = true
	}

	for _, c := range r.store.GetByState(candidate.StatusEntered) {
		if held[c.StockCode] {
			continue
		}
		now := time.Now()
		r.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
			live.Status = candidate.StatusExited
			live.ExitTime = &now
			live.Metadata["auto_exit_reason"] = "holding_missing"
			live.Metadata["final_exit_confirmed"] = true
			return nil
		})
		r.zlog.Warn().Str("stock_code", c.StockCode).Msg("holding missing from balance, forced EXITED")
	}
}
