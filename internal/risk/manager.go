package risk

import (
	"fmt"
	"sync"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// DrawdownGuard is a daily kill switch: once realized losses for the
// trading day exceed MaxDailyDrawdownPct of account balance, it refuses
// further entries until the next KST calendar day. Position sizing and
// target/stop derivation are fully owned by RiskPolicy; this guard adds
// the one ambient safety rail on top of that: an account-wide daily loss
// cap independent of any single position's own stop.
type DrawdownGuard struct {
	maxDailyDrawdownPct float64

	mu             sync.Mutex
	accountBalance float64
	dailyPnL       float64
	resetDay       int
}

// NewDrawdownGuard builds a guard with the given daily drawdown cap
// (e.g. 0.03 for 3%). A non-positive cap disables the guard entirely —
// CanTrade always returns true.
func NewDrawdownGuard(maxDailyDrawdownPct float64) *DrawdownGuard {
	return &DrawdownGuard{
		maxDailyDrawdownPct: maxDailyDrawdownPct,
		resetDay:            time.Now().In(kst).YearDay(),
	}
}

// UpdateBalance records the latest account balance snapshot (EntryExecutor
// already pulls this every tick for sizing; it forwards the same value
// here at no extra REST cost).
func (g *DrawdownGuard) UpdateBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountBalance = balance
}

// RegisterClose folds a realized P&L (KRW, signed) into the day's
// running total. Called by ExecutionReconciler on every sell fill.
func (g *DrawdownGuard) RegisterClose(realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()
	g.dailyPnL += realizedPnL
}

// CanTrade reports whether new entries are allowed right now, and why
// not if they aren't.
func (g *DrawdownGuard) CanTrade() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDayLocked()

	if g.maxDailyDrawdownPct <= 0 || g.accountBalance <= 0 {
		return true, ""
	}
	drawdownPct := -g.dailyPnL / g.accountBalance
	if drawdownPct >= g.maxDailyDrawdownPct {
		return false, fmt.Sprintf("daily drawdown limit reached (%.2f%% >= %.2f%%)", drawdownPct*100, g.maxDailyDrawdownPct*100)
	}
	return true, ""
}

// DailyPnL returns today's running realized P&L.
func (g *DrawdownGuard) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

func (g *DrawdownGuard) resetIfNewDayLocked() {
	day := time.Now().In(kst).YearDay()
	if day != g.resetDay {
		g.dailyPnL = 0
		g.resetDay = day
	}
}
