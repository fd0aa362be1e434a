package risk

import (
	"testing"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveZeroValueWithoutPrimaryPattern(t *testing.T) {
	p := NewPolicy(patterns.DefaultRatioTable())
	c := candidate.New("005930", "Samsung", candidate.KOSPI)

	plan := p.Derive(c, MarketCondition{})
	assert.Equal(t, candidate.RiskPlan{}, plan)
}

func TestDeriveSizesByPatternAndConfidence(t *testing.T) {
	p := NewPolicy(patterns.DefaultRatioTable())
	c := candidate.New("005930", "Samsung", candidate.KOSPI)
	c.CurrentPrice = 70000
	c.AddPattern(candidate.PatternInfo{
		Type:            candidate.BullishEngulfing,
		Confidence:      0.8,
		Strength:        80,
		TargetRatio:     0.023,
		StopRatio:       0.020,
		MaxHoldingHours: 24,
	})

	plan := p.Derive(c, MarketCondition{})
	require.True(t, plan.PositionSizePct > 0)
	assert.InDelta(t, 70000*1.023, plan.TargetPrice, 0.01)
	assert.InDelta(t, 70000*0.980, plan.StopLossPrice, 0.01)
	assert.Equal(t, 24.0, plan.MaxHoldingHours)
}

func TestDeriveAppliesMarketConditionMultiplier(t *testing.T) {
	p := NewPolicy(patterns.DefaultRatioTable())
	c := candidate.New("005930", "Samsung", candidate.KOSPI)
	c.CurrentPrice = 70000
	c.AddPattern(candidate.PatternInfo{Type: candidate.Hammer, Confidence: 0.8, Strength: 80})

	base := p.Derive(c, MarketCondition{})
	bull := p.Derive(c, MarketCondition{Bull: true})
	bear := p.Derive(c, MarketCondition{Bear: true})

	assert.True(t, bull.PositionSizePct > base.PositionSizePct)
	assert.True(t, bear.PositionSizePct < base.PositionSizePct)
}

func TestDeriveFallsBackToStrengthTierWhenRatiosMissing(t *testing.T) {
	p := NewPolicy(patterns.DefaultRatioTable())
	c := candidate.New("005930", "Samsung", candidate.KOSPI)
	c.CurrentPrice = 10000
	c.AddPattern(candidate.PatternInfo{Type: candidate.Hammer, Confidence: 0.9, Strength: 95, TargetRatio: 0, StopRatio: 0})

	plan := p.Derive(c, MarketCondition{})
	assert.InDelta(t, 10000*1.08, plan.TargetPrice, 0.01)
	assert.InDelta(t, 10000*0.96, plan.StopLossPrice, 0.01)
}

func TestRiskScoreHigherForLowPriceAndLargeDayChange(t *testing.T) {
	p := NewPolicy(patterns.DefaultRatioTable())

	cheap := candidate.New("A", "A", candidate.KOSPI)
	cheap.CurrentPrice = 2000
	cheap.OHLCV = []candidate.Bar{{Open: 2000}}

	volatile := candidate.New("B", "B", candidate.KOSPI)
	volatile.CurrentPrice = 50000
	volatile.OHLCV = []candidate.Bar{{Open: 44000}}

	calm := candidate.New("C", "C", candidate.KOSPI)
	calm.CurrentPrice = 50000
	calm.OHLCV = []candidate.Bar{{Open: 50000}}

	assert.True(t, p.riskScore(cheap) > p.riskScore(calm))
	assert.True(t, p.riskScore(volatile) > p.riskScore(calm))
}
