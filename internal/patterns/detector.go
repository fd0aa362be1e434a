// Package patterns implements the candlestick reversal-pattern detector.
// Detect is a pure function: same OHLCV in, same patterns out, no I/O, no
// wall-clock branches.
package patterns

import (
	"sort"

	"github.com/candletrader/engine/internal/candidate"
)

const minConfidence = 0.55
const fallbackMinConfidence = 0.50
const maxPatternsReturned = 2

// Detector detects bullish reversal patterns in a most-recent-first OHLCV
// series and prices them using a pattern-keyed ratio table.
type Detector struct {
	ratios RatioTable
}

// NewDetector builds a detector backed by the given ratio table. Pass
// cache.NewPatternConfigCache(...) for the production 5-minute-cached
// table, or DefaultRatioTable() in tests.
func NewDetector(ratios RatioTable) *Detector {
	return &Detector{ratios: ratios}
}

// Detect scans most-recent-first daily bars for reversal patterns. Fewer
// than 3 bars yields no patterns and never panics.
func (d *Detector) Detect(bars []candidate.Bar) []candidate.PatternInfo {
	if len(bars) < 3 {
		return nil
	}

	// bars[0] is today, bars[1] is yesterday, etc. — flip to chronological
	// order for the pattern math, which reads more naturally oldest-first.
	chrono := make([]candidate.Bar, len(bars))
	for i, b := range bars {
		chrono[len(bars)-1-i] = b
	}
	n := len(chrono)
	todayIdx := n - 1

	var found []candidate.PatternInfo

	if p, ok := d.detectHammerAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectBullishEngulfingAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectPiercingLineAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectMorningStarAt(chrono, todayIdx); ok {
		found = append(found, p)
	}

	return finalize(found)
}

// finalize dedupes by pattern type (keeping the highest-confidence entry),
// filters by the minimum-confidence gate, ranks, and truncates to the
// two strongest signals.
func finalize(found []candidate.PatternInfo) []candidate.PatternInfo {
	if len(found) == 0 {
		return nil
	}

	byType := make(map[candidate.PatternType]candidate.PatternInfo, len(found))
	for _, p := range found {
		if existing, ok := byType[p.Type]; !ok || p.Confidence > existing.Confidence {
			byType[p.Type] = p
		}
	}
	deduped := make([]candidate.PatternInfo, 0, len(byType))
	for _, p := range byType {
		deduped = append(deduped, p)
	}

	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Confidence != deduped[j].Confidence {
			return deduped[i].Confidence > deduped[j].Confidence
		}
		return deduped[i].Strength > deduped[j].Strength
	})

	var passed []candidate.PatternInfo
	for _, p := range deduped {
		if p.Confidence >= minConfidence {
			passed = append(passed, p)
		}
	}

	if len(passed) == 0 {
		if deduped[0].Confidence >= fallbackMinConfidence {
			return deduped[:1]
		}
		return nil
	}
	if len(passed) > maxPatternsReturned {
		passed = passed[:maxPatternsReturned]
	}
	return passed
}

func bodyRange(b candidate.Bar) (body, rng, upperShadow, lowerShadow float64) {
	rng = b.High - b.Low
	body = abs(b.Close - b.Open)
	upperShadow = b.High - max(b.Open, b.Close)
	lowerShadow = min(b.Open, b.Close) - b.Low
	return
}

func isBullish(b candidate.Bar) bool { return b.Close > b.Open }
func isBearish(b candidate.Bar) bool { return b.Close < b.Open }

func closePosition(b candidate.Bar) float64 {
	rng := b.High - b.Low
	if rng == 0 {
		return 0.5
	}
	return (b.Close - b.Low) / rng
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
