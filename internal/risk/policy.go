// Package risk derives position-sizing and exit plans from pattern evidence
// and market condition, and guards RiskPlan adjustments against thrash.
package risk

import (
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/patterns"
)

// MarketCondition biases position size the way a coarse market-index
// heuristic would (bull/bear/high-volatility multipliers compose
// multiplicatively).
type MarketCondition struct {
	Bull          bool
	Bear          bool
	HighVolatility bool
}

func (m MarketCondition) multiplier() float64 {
	mult := 1.0
	if m.Bull {
		mult *= 1.2
	}
	if m.Bear {
		mult *= 0.7
	}
	if m.HighVolatility {
		mult *= 0.8
	}
	return mult
}

// strengthTier is the fallback target/stop lookup used when a pattern has
// no configured ratio.
type strengthTier struct {
	minStrength float64
	target      float64
	stop        float64
}

var strengthTiers = []strengthTier{
	{90, 0.08, 0.04},
	{80, 0.06, 0.03},
	{70, 0.04, 0.03},
	{60, 0.02, 0.02},
}

func tieredTargetStop(strength float64) (target, stop float64) {
	for _, t := range strengthTiers {
		if strength >= t.minStrength {
			return t.target, t.stop
		}
	}
	return 0.02, 0.015
}

// basePositionPct returns the pattern-tiered base position size before
// confidence scaling and market-condition multipliers.
func basePositionPct(pt candidate.PatternType) float64 {
	switch pt {
	case candidate.MorningStar, candidate.BullishEngulfing:
		return 0.30
	case candidate.Hammer, candidate.InvertedHammer:
		return 0.20
	default:
		return 0.15
	}
}

// Policy derives RiskPlans from a candidate's primary pattern and the
// prevailing market condition.
type Policy struct {
	ratios patterns.RatioTable
}

// NewPolicy builds a Policy backed by the given pattern ratio table (the
// same table PatternDetector reads, so target/stop stay consistent
// between detection and sizing).
func NewPolicy(ratios patterns.RatioTable) *Policy {
	return &Policy{ratios: ratios}
}

// Derive computes the RiskPlan for a candidate given its primary pattern
// and the current market condition. Returns a zero-value plan if the
// candidate has no primary pattern yet.
func (p *Policy) Derive(c *candidate.Candidate, mc MarketCondition) candidate.RiskPlan {
	if c.PrimaryPattern == nil {
		return candidate.RiskPlan{}
	}
	pattern := *c.PrimaryPattern

	sizePct := basePositionPct(pattern.Type) * pattern.Confidence * mc.multiplier()

	target := pattern.TargetRatio
	stop := pattern.StopRatio
	if target == 0 || stop == 0 {
		target, stop = tieredTargetStop(pattern.Strength)
	}

	maxHours := pattern.MaxHoldingHours
	if maxHours == 0 {
		maxHours = 24
	}

	plan := candidate.RiskPlan{
		PositionSizePct: sizePct,
		TrailingStopPct: stop * 0.6,
		MaxHoldingHours: maxHours,
		RiskScore:       p.riskScore(c),
	}
	if c.CurrentPrice > 0 {
		plan.TargetPrice = c.CurrentPrice * (1 + target)
		plan.StopLossPrice = c.CurrentPrice * (1 - stop)
	}
	return plan
}

// riskScore scores 0-100: price-band risk plus day-change-magnitude
// risk.
func (p *Policy) riskScore(c *candidate.Candidate) float64 {
	score := 0.0
	if c.CurrentPrice > 0 && c.CurrentPrice < 5000 {
		score += 20
	}
	if c.CurrentPrice > 100000 {
		score += 10
	}

	dayChangePct := dayChangePct(c)
	abs := dayChangePct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0.10:
		score += 30
	case abs > 0.05:
		score += 15
	}

	if score > 100 {
		score = 100
	}
	return score
}

func dayChangePct(c *candidate.Candidate) float64 {
	if len(c.OHLCV) == 0 || c.OHLCV[0].Open == 0 {
		return 0
	}
	return (c.CurrentPrice - c.OHLCV[0].Open) / c.OHLCV[0].Open
}
