package patterns

import "github.com/candletrader/engine/internal/candidate"

// PatternRatios is the target/stop/holding-window configuration for a
// single pattern type, persisted as JSON (see internal/cache) with the
// shape {target, stop, max_hours, min_minutes}.
type PatternRatios struct {
	Target          float64
	Stop            float64
	MaxHoldingHours float64
	MinHoldMinutes  float64
}

// RatioTable resolves a pattern type to its current target/stop/holding
// configuration. The production implementation (internal/cache) lazily
// refreshes from Redis/Postgres every 5 minutes; DefaultRatioTable is the
// static fallback used when no override has ever been persisted, and in
// tests.
type RatioTable interface {
	For(t candidate.PatternType) PatternRatios
}

// staticRatioTable is an immutable in-memory RatioTable.
type staticRatioTable map[candidate.PatternType]PatternRatios

func (t staticRatioTable) For(pt candidate.PatternType) PatternRatios {
	if r, ok := t[pt]; ok {
		return r
	}
	return PatternRatios{Target: 0.02, Stop: 0.015, MaxHoldingHours: 24}
}

// DefaultRatioTable returns the built-in per-pattern target/stop pairs
// used when no cache or persisted override is available.
func DefaultRatioTable() RatioTable {
	return staticRatioTable{
		candidate.Hammer:           {Target: 0.018, Stop: 0.015, MaxHoldingHours: 24},
		candidate.BullishEngulfing: {Target: 0.023, Stop: 0.020, MaxHoldingHours: 24},
		candidate.PiercingLine:     {Target: 0.018, Stop: 0.015, MaxHoldingHours: 24},
		candidate.MorningStar:      {Target: 0.025, Stop: 0.025, MaxHoldingHours: 30},
	}
}
