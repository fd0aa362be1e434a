package patterns

import "github.com/candletrader/engine/internal/candidate"

// trendWindow is how many prior closes feed the downtrend blend (a
// 3-day downtrend).
const trendWindow = 3

// trendContext computes the downtrend return (positive = decline) and a
// [0,1] blended downtrend score over up to trendWindow+1 bars (trendWindow
// daily changes) ending at chrono[endIdx], using (normalized regression
// slope, simple return, fraction of down-days).
func trendContext(chrono []candidate.Bar, endIdx int) (returnPct, score float64) {
	start := endIdx - trendWindow
	if start < 0 {
		start = 0
	}
	window := chrono[start : endIdx+1]
	n := len(window)
	if n < 2 {
		return 0, 0
	}

	startClose := window[0].Close
	endClose := window[n-1].Close
	if startClose == 0 {
		return 0, 0
	}
	returnPct = (startClose - endClose) / startClose

	var sumX, sumY, sumXY, sumX2 float64
	nf := float64(n)
	for i, b := range window {
		x := float64(i)
		y := b.Close
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := nf*sumX2 - sumX*sumX
	var normSlope float64
	if denom != 0 && sumY != 0 {
		slope := (nf*sumXY - sumX*sumY) / denom
		avgPrice := sumY / nf
		normSlope = -(slope / avgPrice) // negative price slope -> positive downtrend signal
	}

	downDays := 0
	for i := 1; i < n; i++ {
		if window[i].Close < window[i-1].Close {
			downDays++
		}
	}
	downFrac := float64(downDays) / float64(n-1)

	score = clamp01((clamp01(normSlope*20) + clamp01(returnPct*20) + downFrac) / 3)
	return returnPct, score
}

// detectHammerAt checks today's bar for a Hammer reversal preceded by a
// downtrend. trendIdx is today's index within chrono, used to look back
// for the downtrend window ending the day before.
func (d *Detector) detectHammerAt(chrono []candidate.Bar, trendIdx int) (candidate.PatternInfo, bool) {
	today := chrono[trendIdx]
	body, rng, upperShadow, lowerShadow := bodyRange(today)
	if rng == 0 {
		return candidate.PatternInfo{}, false
	}

	lowerRatio := lowerShadow / rng
	bodyRatio := body / rng
	upperRatio := upperShadow / rng

	if lowerRatio < 0.45 || bodyRatio > 0.40 || upperRatio > 0.15 {
		return candidate.PatternInfo{}, false
	}
	if closePosition(today) < 0.30 {
		return candidate.PatternInfo{}, false
	}

	downtrendPct, downtrendScore := trendContext(chrono, trendIdx-1)
	if downtrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	confidence := clamp01(0.6 + lowerRatio*0.3 + downtrendScore*0.1)
	ratio := d.ratios.For(candidate.Hammer)
	return candidate.PatternInfo{
		Type:            candidate.Hammer,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "hammer after downtrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

func (d *Detector) detectBullishEngulfingAt(chrono []candidate.Bar, todayIdx int) (candidate.PatternInfo, bool) {
	today := chrono[todayIdx]
	prior := chrono[todayIdx-1]

	if !isBearish(prior) || !isBullish(today) {
		return candidate.PatternInfo{}, false
	}
	priorBody := abs(prior.Close - prior.Open)
	todayBody := abs(today.Close - today.Open)
	if priorBody == 0 {
		return candidate.PatternInfo{}, false
	}
	if todayBody < 0.85*priorBody {
		return candidate.PatternInfo{}, false
	}
	if today.Open > prior.Open*1.01 {
		return candidate.PatternInfo{}, false
	}
	if today.Close < prior.Close*0.99 {
		return candidate.PatternInfo{}, false
	}

	downtrendPct, downtrendScore := trendContext(chrono, todayIdx-1)
	if downtrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	sizeRatio := clamp01(todayBody / priorBody / 2) // normalize; 2x engulf -> 1.0
	confidence := clamp01(0.65 + sizeRatio*0.15 + downtrendScore*0.1)
	ratio := d.ratios.For(candidate.BullishEngulfing)
	return candidate.PatternInfo{
		Type:            candidate.BullishEngulfing,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "bullish engulfing after downtrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

func (d *Detector) detectPiercingLineAt(chrono []candidate.Bar, todayIdx int) (candidate.PatternInfo, bool) {
	today := chrono[todayIdx]
	prior := chrono[todayIdx-1]

	if !isBearish(prior) || !isBullish(today) {
		return candidate.PatternInfo{}, false
	}
	if today.Open > prior.Close {
		return candidate.PatternInfo{}, false // must gap down at/through prior close
	}
	priorBody := prior.Open - prior.Close
	if priorBody <= 0 {
		return candidate.PatternInfo{}, false
	}
	penetration := (today.Close - prior.Close) / priorBody
	if penetration < 0.35 {
		return candidate.PatternInfo{}, false
	}

	downtrendPct, _ := trendContext(chrono, todayIdx-1)
	if downtrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	confidence := clamp01(0.65 + clamp01(penetration)*0.2)
	ratio := d.ratios.For(candidate.PiercingLine)
	return candidate.PatternInfo{
		Type:            candidate.PiercingLine,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "piercing line after downtrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

func (d *Detector) detectMorningStarAt(chrono []candidate.Bar, thirdIdx int) (candidate.PatternInfo, bool) {
	if thirdIdx < 2 {
		return candidate.PatternInfo{}, false
	}
	c1, c2, c3 := chrono[thirdIdx-2], chrono[thirdIdx-1], chrono[thirdIdx]

	if !isBearish(c1) {
		return candidate.PatternInfo{}, false
	}
	c2Body, c2Range, _, _ := bodyRange(c2)
	if c2Range == 0 || c2Body/c2Range > 0.6 {
		return candidate.PatternInfo{}, false
	}
	if !isBullish(c3) {
		return candidate.PatternInfo{}, false
	}
	c3Body, c3Range, _, _ := bodyRange(c3)
	if c3Range == 0 || c3Body/c3Range < 0.15 {
		return candidate.PatternInfo{}, false
	}

	downtrendPct, _ := trendContext(chrono, thirdIdx-2)
	if downtrendPct < 0.005 {
		return candidate.PatternInfo{}, false
	}

	bullishStrength := clamp01(c3Body / c3Range)
	confidence := clamp01(0.7 + bullishStrength*0.15)
	ratio := d.ratios.For(candidate.MorningStar)
	return candidate.PatternInfo{
		Type:            candidate.MorningStar,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "morning star after downtrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}
