package patterns

import (
	"testing"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHammerAfterDowntrend(t *testing.T) {
	d := NewDetector(DefaultRatioTable())

	// most-recent-first: today's hammer, then three days of decline
	bars := []candidate.Bar{
		{Open: 100, Close: 101, Low: 90, High: 102},
		{Close: 102},
		{Close: 106},
		{Close: 110},
	}

	patterns := d.Detect(bars)
	require.NotEmpty(t, patterns)
	assert.Equal(t, candidate.Hammer, patterns[0].Type)
	assert.True(t, patterns[0].Confidence >= 0.5)
	assert.True(t, patterns[0].Confidence <= 1.0)
	assert.Equal(t, 0.018, patterns[0].TargetRatio)
}

func TestDetectNoPatternWithoutDowntrend(t *testing.T) {
	d := NewDetector(DefaultRatioTable())

	// same hammer-shaped candle, but the prior bars are flat/rising - the
	// downtrend precondition fails and no pattern should fire
	bars := []candidate.Bar{
		{Open: 100, Close: 101, Low: 90, High: 102},
		{Close: 99},
		{Close: 98},
		{Close: 97},
	}

	patterns := d.Detect(bars)
	assert.Empty(t, patterns)
}

func TestDetectRequiresAtLeastThreeBars(t *testing.T) {
	d := NewDetector(DefaultRatioTable())
	assert.Nil(t, d.Detect(nil))
	assert.Nil(t, d.Detect([]candidate.Bar{{Close: 100}}))
	assert.Nil(t, d.Detect([]candidate.Bar{{Close: 100}, {Close: 99}}))
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewDetector(DefaultRatioTable())
	bars := []candidate.Bar{
		{Open: 100, Close: 101, Low: 90, High: 102},
		{Close: 102},
		{Close: 106},
		{Close: 110},
	}

	first := d.Detect(bars)
	second := d.Detect(bars)
	assert.Equal(t, first, second)
}

func TestDetectBullishEngulfing(t *testing.T) {
	d := NewDetector(DefaultRatioTable())

	bars := []candidate.Bar{
		{Open: 98, Close: 104, Low: 97, High: 105}, // today: bullish engulfing
		{Open: 100, Close: 98, Low: 97, High: 101},  // yesterday: bearish
		{Close: 105},
		{Close: 110},
	}

	patterns := d.Detect(bars)
	require.NotEmpty(t, patterns)

	found := false
	for _, p := range patterns {
		if p.Type == candidate.BullishEngulfing {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectBearishMirrorsDetectForUptrend(t *testing.T) {
	d := NewDetector(DefaultRatioTable())

	// shooting star after an uptrend
	bars := []candidate.Bar{
		{Open: 100, Close: 99, Low: 98, High: 112},
		{Close: 98},
		{Close: 94},
		{Close: 90},
	}

	patterns := d.DetectBearish(bars)
	require.NotEmpty(t, patterns)
	assert.Equal(t, candidate.ShootingStar, patterns[0].Type)
}

func TestDetectBearishRequiresAtLeastThreeBars(t *testing.T) {
	d := NewDetector(DefaultRatioTable())
	assert.Nil(t, d.DetectBearish([]candidate.Bar{{Close: 100}}))
}

func TestFinalizeDedupesAndCapsAtTwoStrongest(t *testing.T) {
	found := []candidate.PatternInfo{
		{Type: candidate.Hammer, Confidence: 0.9, Strength: 90},
		{Type: candidate.Hammer, Confidence: 0.6, Strength: 60}, // lower-confidence dup, dropped
		{Type: candidate.BullishEngulfing, Confidence: 0.8, Strength: 80},
		{Type: candidate.PiercingLine, Confidence: 0.7, Strength: 70},
	}

	out := finalize(found)
	require.Len(t, out, 2)
	assert.Equal(t, candidate.Hammer, out[0].Type)
	assert.Equal(t, 0.9, out[0].Confidence)
	assert.Equal(t, candidate.BullishEngulfing, out[1].Type)
}

func TestFinalizeFallsBackToSingleWeakSignal(t *testing.T) {
	found := []candidate.PatternInfo{
		{Type: candidate.Hammer, Confidence: 0.52, Strength: 52},
	}
	out := finalize(found)
	require.Len(t, out, 1)
	assert.Equal(t, candidate.Hammer, out[0].Type)
}

func TestFinalizeDropsBelowFallbackThreshold(t *testing.T) {
	found := []candidate.PatternInfo{
		{Type: candidate.Hammer, Confidence: 0.3, Strength: 30},
	}
	assert.Nil(t, finalize(found))
}

func TestDefaultRatioTableFallsBackForUnknownPattern(t *testing.T) {
	table := DefaultRatioTable()
	r := table.For(candidate.DarkCloudCover)
	assert.Equal(t, 0.02, r.Target)
	assert.Equal(t, 0.015, r.Stop)
}
