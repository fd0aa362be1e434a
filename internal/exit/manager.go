// Package exit implements ExitManager: the orchestrator phase that turns
// an exit signal (or a time-based trigger) on an ENTERED candidate into a
// submitted sell order.
package exit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/cache"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/pricing"
	"github.com/candletrader/engine/internal/store"
	"github.com/candletrader/engine/internal/tradingwindow"
)

// Tracker records outstanding orders so ExecutionReconciler's timeout
// handler can poll/cancel them past the pending-order max age. Satisfied
// by *cache.PendingOrderTracker; nil disables tracking.
type Tracker interface {
	Track(ctx context.Context, info cache.PendingOrderInfo) error
}

// quantityExceededMarker is the known gateway error substring for an
// over-sized sell quantity.
const quantityExceededMarker = "quantity-exceeded"

// Config holds ExitManager's time-exit thresholds.
type Config struct {
	MinProfitForTimeExit float64
}

// Manager is ExitManager.
type Manager struct {
	client  broker.Client
	store   *store.Store
	tracker Tracker
	window  tradingwindow.Window
	logger  *logging.Logger
	cfg     Config
}

// New builds a Manager. tracker may be nil (pending-order tracking
// disabled).
func New(client broker.Client, st *store.Store, tracker Tracker, window tradingwindow.Window, logger *logging.Logger, cfg Config) *Manager {
	if cfg.MinProfitForTimeExit <= 0 {
		cfg.MinProfitForTimeExit = 0.01
	}
	return &Manager{client: client, store: st, tracker: tracker, window: window, logger: logger, cfg: cfg}
}

// Run evaluates every ENTERED candidate for an exit.
func (m *Manager) Run(ctx context.Context) {
	if !m.window.IsOpen(time.Now()) {
		return
	}
	for _, c := range m.store.GetByState(candidate.StatusEntered) {
		m.evaluate(ctx, c)
	}
}

func (m *Manager) evaluate(ctx context.Context, c *candidate.Candidate) {
	if final, _ := c.Metadata["final_exit_confirmed"].(bool); final {
		return
	}

	if c.EntryQuantity <= 0 {
		m.forceExit(c, "no_system_quantity")
		return
	}

	reason, trigger := m.exitReason(c)
	if !trigger {
		return
	}

	safePrice := pricing.SafeSellPrice(c.CurrentPrice, reason)
	result, err := m.client.OrderSell(ctx, c.StockCode, c.EntryQuantity, safePrice)
	if err != nil {
		m.logf("sell order error for %s: %v", c.StockCode, err)
		return
	}
	if !result.Success {
		if strings.Contains(strings.ToLower(result.Error), quantityExceededMarker) {
			now := time.Now()
			m.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
				live.Status = candidate.StatusExited
				live.ExitTime = &now
				live.ExitReason = string(reason)
				live.Metadata["auto_exit_reason"] = "quantity_exceeded"
				return nil
			})
			return
		}
		m.logf("sell order rejected for %s: %s", c.StockCode, result.Error)
		return
	}

	if m.tracker != nil {
		if err := m.tracker.Track(ctx, cache.PendingOrderInfo{
			OrderNo:   result.OrderNo,
			StockCode: c.StockCode,
			Side:      "SELL",
			Price:     safePrice,
			Quantity:  c.EntryQuantity,
		}); err != nil {
			m.logf("pending order tracking failed for %s: %v", c.StockCode, err)
		}
	}

	now := time.Now()
	m.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		if !candidate.CanTransition(live.Status, candidate.StatusPendingOrder) {
			return fmt.Errorf("exit: %s cannot transition %s -> PENDING_ORDER", live.StockCode, live.Status)
		}
		live.PendingSellOrderNo = result.OrderNo
		live.PendingOrderType = candidate.PendingSell
		live.PendingOrderTime = &now
		live.Status = candidate.StatusPendingOrder
		live.Metadata["exit_reason_pending"] = string(reason)
		live.Metadata["pending_sell_quantity"] = c.EntryQuantity
		return nil
	})
}

// exitReason determines whether an exit should fire now, and under which
// pricing.SellReason: the evaluator's STRONG_SELL/SELL signal, the hard
// business-hours time exit, or the soft profit time exit.
func (m *Manager) exitReason(c *candidate.Candidate) (pricing.SellReason, bool) {
	switch c.TradeSignal {
	case candidate.StrongSell:
		return pricing.ReasonStopLoss, true
	case candidate.Sell:
		return pricing.ReasonTarget, true
	}

	if c.EntryTime == nil || c.PrimaryPattern == nil || c.PrimaryPattern.MaxHoldingHours <= 0 {
		return "", false
	}
	held := m.window.BusinessHoursElapsed(*c.EntryTime, time.Now())
	maxHold := time.Duration(c.PrimaryPattern.MaxHoldingHours * float64(time.Hour))

	if held >= maxHold {
		return pricing.ReasonTime, true
	}
	if held >= maxHold/2 && c.UnrealizedPnLPct >= m.cfg.MinProfitForTimeExit {
		return pricing.ReasonProfit, true
	}
	return "", false
}

func (m *Manager) forceExit(c *candidate.Candidate, reason string) {
	now := time.Now()
	m.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		live.Status = candidate.StatusExited
		live.ExitTime = &now
		live.ExitReason = reason
		live.Metadata["auto_exit_reason"] = reason
		live.Metadata["final_exit_confirmed"] = true
		return nil
	})
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Warn(fmt.Sprintf(format, args...))
	}
}
