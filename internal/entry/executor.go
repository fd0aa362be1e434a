// Package entry implements EntryExecutor: the orchestrator phase that
// turns a BUY_READY candidate into a submitted buy order.
package entry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/cache"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/store"
)

// Config holds EntryExecutor's sizing and cadence parameters.
type Config struct {
	MinOrderInterval     time.Duration
	MinInvestmentKRW     float64
	MaxSingleInvestRatio float64
	PositionCap          int
}

// Tracker records outstanding orders so ExecutionReconciler's timeout
// handler can poll/cancel them past the pending-order max age. Satisfied
// by *cache.PendingOrderTracker; nil disables tracking.
type Tracker interface {
	Track(ctx context.Context, info cache.PendingOrderInfo) error
}

// Guard gates whether any new entry may be submitted this tick, on top
// of the per-candidate checks in submit. Satisfied by
// *risk.DrawdownGuard; nil disables the gate.
type Guard interface {
	CanTrade() (bool, string)
}

// Executor is EntryExecutor.
type Executor struct {
	client  broker.Client
	store   *store.Store
	tracker Tracker
	guard   Guard
	logger  *logging.Logger
	cfg     Config
}

// New builds an Executor. tracker may be nil (pending-order tracking
// disabled).
func New(client broker.Client, st *store.Store, tracker Tracker, logger *logging.Logger, cfg Config) *Executor {
	if cfg.MinOrderInterval <= 0 {
		cfg.MinOrderInterval = 300 * time.Second
	}
	if cfg.MinInvestmentKRW <= 0 {
		cfg.MinInvestmentKRW = 100000
	}
	if cfg.MaxSingleInvestRatio <= 0 {
		cfg.MaxSingleInvestRatio = 0.4
	}
	if cfg.PositionCap <= 0 {
		cfg.PositionCap = store.DefaultPositionCap
	}
	return &Executor{client: client, store: st, tracker: tracker, logger: logger, cfg: cfg}
}

// SetGuard attaches a daily drawdown guard. nil disables the check.
func (ex *Executor) SetGuard(g Guard) {
	ex.guard = g
}

// Run submits buy orders for every ready candidate, honoring the per-tick
// positions cap: never queue more buy orders than remaining slots.
func (ex *Executor) Run(ctx context.Context) {
	remaining := ex.cfg.PositionCap - ex.store.PositionCount()
	if remaining <= 0 {
		return
	}
	if ex.guard != nil {
		if ok, reason := ex.guard.CanTrade(); !ok {
			ex.logf("entries halted: %s", reason)
			return
		}
	}

	candidates := ex.store.GetByState(candidate.StatusBuyReady, candidate.StatusWatching)
	for _, c := range candidates {
		if remaining <= 0 {
			return
		}
		if !c.IsReadyForEntry() {
			continue
		}
		if ex.submit(ctx, c) {
			remaining--
		}
	}
}

// submit runs the full entry pipeline for one candidate. Returns true iff
// a buy order was placed.
func (ex *Executor) submit(ctx context.Context, c *candidate.Candidate) bool {
	now := time.Now()

	if c.Status == candidate.StatusPendingOrder || c.HasPendingOrder(candidate.PendingBuy) {
		return false
	}
	if last, ok := c.Metadata["last_buy_order_time"].(time.Time); ok && now.Sub(last) < ex.cfg.MinOrderInterval {
		return false
	}

	balance, err := ex.client.Balance(ctx)
	if err != nil {
		ex.logf("balance fetch failed for %s: %v", c.StockCode, err)
		return false
	}
	if g, ok := ex.guard.(interface{ UpdateBalance(float64) }); ok {
		g.UpdateBalance(balance.TotalValue)
	}

	investable := balance.AvailableAmount * 0.9
	if investable <= 0 {
		investable = balance.CashBalance * 0.8
	}
	if investable < ex.cfg.MinInvestmentKRW {
		return false
	}

	amount := ex.positionAmount(investable, c)
	if amount < ex.cfg.MinInvestmentKRW {
		amount = ex.cfg.MinInvestmentKRW
	}
	if amount > investable {
		amount = investable
	}

	quantity := int(math.Floor(amount / c.CurrentPrice))
	if quantity <= 0 {
		return false
	}

	result, err := ex.client.OrderBuy(ctx, c.StockCode, quantity, c.CurrentPrice)
	if err != nil || !result.Success {
		ex.logf("buy order rejected for %s: %v %s", c.StockCode, err, result.Error)
		return false
	}

	if ex.tracker != nil {
		if err := ex.tracker.Track(ctx, cache.PendingOrderInfo{
			OrderNo:   result.OrderNo,
			StockCode: c.StockCode,
			Side:      "BUY",
			Price:     c.CurrentPrice,
			Quantity:  quantity,
		}); err != nil {
			ex.logf("pending order tracking failed for %s: %v", c.StockCode, err)
		}
	}

	return ex.store.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		if !candidate.CanTransition(live.Status, candidate.StatusPendingOrder) {
			return fmt.Errorf("entry: %s cannot transition %s -> PENDING_ORDER", live.StockCode, live.Status)
		}
		live.PendingBuyOrderNo = result.OrderNo
		live.PendingOrderType = candidate.PendingBuy
		live.PendingOrderTime = &now
		live.Status = candidate.StatusPendingOrder
		live.Metadata["last_buy_order_time"] = now
		live.Metadata["pending_buy_quantity"] = quantity
		return nil
	}) == nil
}

// positionAmount computes the position size as investable ×
// max_single_investment_ratio × position_size_multiplier ×
// volatility_multiplier × priority_multiplier.
func (ex *Executor) positionAmount(investable float64, c *candidate.Candidate) float64 {
	positionSizeMultiplier := c.Risk.PositionSizePct
	if positionSizeMultiplier <= 0 {
		positionSizeMultiplier = 0.15
	}

	// volatility_multiplier scales down as RiskPlan.RiskScore (the
	// price-band/day-change risk from RiskPolicy) rises, floored at 0.7
	// so a single volatile day never more than modestly trims size.
	volatilityMultiplier := 1 - (c.Risk.RiskScore/100)*0.3
	if volatilityMultiplier < 0.7 {
		volatilityMultiplier = 0.7
	}

	priorityMultiplier := c.EntryPriority/100 + 0.5
	if priorityMultiplier > 1.5 {
		priorityMultiplier = 1.5
	}

	return investable * ex.cfg.MaxSingleInvestRatio * positionSizeMultiplier * volatilityMultiplier * priorityMultiplier
}

func (ex *Executor) logf(format string, args ...interface{}) {
	if ex.logger != nil {
		ex.logger.Warn(fmt.Sprintf(format, args...))
	}
}
