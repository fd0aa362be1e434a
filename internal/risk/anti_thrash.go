package risk

import (
	"sync"
	"time"

	"github.com/candletrader/engine/internal/candidate"
)

const (
	minAdjustmentInterval   = 300 * time.Second
	maxConsecutiveSameDir   = 3
)

// adjustmentRecord tracks the last RiskPlan adjustment applied to a
// symbol, for the anti-thrash rule.
type adjustmentRecord struct {
	at            time.Time
	direction     candidate.AdjustmentDirection
	consecutive   int
}

// AdjustmentGuard rejects RiskPlan adjustments that would thrash a
// symbol's target/stop back and forth. Safety-tightening adjustments
// (stop moving toward the entry price) are always allowed.
type AdjustmentGuard struct {
	mu      sync.Mutex
	records map[string]*adjustmentRecord
}

// NewAdjustmentGuard builds an empty guard.
func NewAdjustmentGuard() *AdjustmentGuard {
	return &AdjustmentGuard{records: make(map[string]*adjustmentRecord)}
}

// Allow reports whether an adjustment in the given direction may be
// applied to stockCode now, and records it if so. tightensToSafety bypasses
// the cooldown/consecutive-count checks (a stop tightening toward safety
// is never rejected).
func (g *AdjustmentGuard) Allow(stockCode string, direction candidate.AdjustmentDirection, tightensToSafety bool, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[stockCode]
	if !ok {
		g.records[stockCode] = &adjustmentRecord{at: now, direction: direction, consecutive: 1}
		return true
	}

	if tightensToSafety {
		g.recordLocked(rec, direction, now)
		return true
	}

	sinceLast := now.Sub(rec.at)
	sameDirection := direction == rec.direction

	if sinceLast < minAdjustmentInterval && sameDirection && rec.consecutive >= maxConsecutiveSameDir {
		return false
	}
	if sinceLast < minAdjustmentInterval && !sameDirection {
		// A direction change is always allowed.
		g.recordLocked(rec, direction, now)
		return true
	}

	g.recordLocked(rec, direction, now)
	return true
}

func (g *AdjustmentGuard) recordLocked(rec *adjustmentRecord, direction candidate.AdjustmentDirection, now time.Time) {
	if direction == rec.direction {
		rec.consecutive++
	} else {
		rec.consecutive = 1
	}
	rec.direction = direction
	rec.at = now
}

// Reset drops the adjustment history for a symbol (call on exit/removal).
func (g *AdjustmentGuard) Reset(stockCode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, stockCode)
}
