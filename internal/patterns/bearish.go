package patterns

import "github.com/candletrader/engine/internal/candidate"

// DetectBearish mirrors Detect but looks for the bearish counterpart of
// each reversal pattern after an uptrend, rather than the bullish pattern
// after a downtrend. SignalEvaluator's exit scoring uses this to detect a
// pattern reversal against an open position; MarketScanner never calls
// it — seeding only ever looks for bullish setups.
func (d *Detector) DetectBearish(bars []candidate.Bar) []candidate.PatternInfo {
	if len(bars) < 3 {
		return nil
	}

	chrono := make([]candidate.Bar, len(bars))
	for i, b := range bars {
		chrono[len(bars)-1-i] = b
	}
	n := len(chrono)
	todayIdx := n - 1

	var found []candidate.PatternInfo

	if p, ok := d.detectShootingStarAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectBearishEngulfingAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectDarkCloudCoverAt(chrono, todayIdx); ok {
		found = append(found, p)
	}
	if p, ok := d.detectEveningStarAt(chrono, todayIdx); ok {
		found = append(found, p)
	}

	return finalize(found)
}

// uptrendContext is trendContext's mirror: positive score means the series
// has been rising into today's bar, the precondition every bearish
// reversal pattern needs.
func uptrendContext(chrono []candidate.Bar, endIdx int) (returnPct, score float64) {
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
	returnPct = (endClose - startClose) / startClose

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
		normSlope = slope / avgPrice
	}

	upDays := 0
	for i := 1; i < n; i++ {
		if window[i].Close > window[i-1].Close {
			upDays++
		}
	}
	upFrac := float64(upDays) / float64(n-1)

	score = clamp01((clamp01(normSlope*20) + clamp01(returnPct*20) + upFrac) / 3)
	return returnPct, score
}

// detectShootingStarAt mirrors detectHammerAt: small body near the bar's
// low, long upper shadow, after an uptrend.
func (d *Detector) detectShootingStarAt(chrono []candidate.Bar, trendIdx int) (candidate.PatternInfo, bool) {
	today := chrono[trendIdx]
	body, rng, upperShadow, lowerShadow := bodyRange(today)
	if rng == 0 {
		return candidate.PatternInfo{}, false
	}

	upperRatio := upperShadow / rng
	bodyRatio := body / rng
	lowerRatio := lowerShadow / rng

	if upperRatio < 0.45 || bodyRatio > 0.40 || lowerRatio > 0.15 {
		return candidate.PatternInfo{}, false
	}
	if closePosition(today) > 0.70 {
		return candidate.PatternInfo{}, false
	}

	uptrendPct, uptrendScore := uptrendContext(chrono, trendIdx-1)
	if uptrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	confidence := clamp01(0.6 + upperRatio*0.3 + uptrendScore*0.1)
	ratio := d.ratios.For(candidate.ShootingStar)
	return candidate.PatternInfo{
		Type:            candidate.ShootingStar,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "shooting star after uptrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

// detectBearishEngulfingAt mirrors detectBullishEngulfingAt.
func (d *Detector) detectBearishEngulfingAt(chrono []candidate.Bar, todayIdx int) (candidate.PatternInfo, bool) {
	today := chrono[todayIdx]
	prior := chrono[todayIdx-1]

	if !isBullish(prior) || !isBearish(today) {
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
	if today.Open < prior.Open*0.99 {
		return candidate.PatternInfo{}, false
	}
	if today.Close > prior.Close*1.01 {
		return candidate.PatternInfo{}, false
	}

	uptrendPct, uptrendScore := uptrendContext(chrono, todayIdx-1)
	if uptrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	sizeRatio := clamp01(todayBody / priorBody / 2)
	confidence := clamp01(0.65 + sizeRatio*0.15 + uptrendScore*0.1)
	ratio := d.ratios.For(candidate.BearishEngulfing)
	return candidate.PatternInfo{
		Type:            candidate.BearishEngulfing,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "bearish engulfing after uptrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

// detectDarkCloudCoverAt mirrors detectPiercingLineAt.
func (d *Detector) detectDarkCloudCoverAt(chrono []candidate.Bar, todayIdx int) (candidate.PatternInfo, bool) {
	today := chrono[todayIdx]
	prior := chrono[todayIdx-1]

	if !isBullish(prior) || !isBearish(today) {
		return candidate.PatternInfo{}, false
	}
	if today.Open < prior.Close {
		return candidate.PatternInfo{}, false // must gap up at/through prior close
	}
	priorBody := prior.Close - prior.Open
	if priorBody <= 0 {
		return candidate.PatternInfo{}, false
	}
	penetration := (prior.Close - today.Close) / priorBody
	if penetration < 0.35 {
		return candidate.PatternInfo{}, false
	}

	uptrendPct, _ := uptrendContext(chrono, todayIdx-1)
	if uptrendPct < 0.015 {
		return candidate.PatternInfo{}, false
	}

	confidence := clamp01(0.65 + clamp01(penetration)*0.2)
	ratio := d.ratios.For(candidate.DarkCloudCover)
	return candidate.PatternInfo{
		Type:            candidate.DarkCloudCover,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "dark cloud cover after uptrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}

// detectEveningStarAt mirrors detectMorningStarAt.
func (d *Detector) detectEveningStarAt(chrono []candidate.Bar, thirdIdx int) (candidate.PatternInfo, bool) {
	if thirdIdx < 2 {
		return candidate.PatternInfo{}, false
	}
	c1, c2, c3 := chrono[thirdIdx-2], chrono[thirdIdx-1], chrono[thirdIdx]

	if !isBullish(c1) {
		return candidate.PatternInfo{}, false
	}
	c2Body, c2Range, _, _ := bodyRange(c2)
	if c2Range == 0 || c2Body/c2Range > 0.6 {
		return candidate.PatternInfo{}, false
	}
	if !isBearish(c3) {
		return candidate.PatternInfo{}, false
	}
	c3Body, c3Range, _, _ := bodyRange(c3)
	if c3Range == 0 || c3Body/c3Range < 0.15 {
		return candidate.PatternInfo{}, false
	}

	uptrendPct, _ := uptrendContext(chrono, thirdIdx-2)
	if uptrendPct < 0.005 {
		return candidate.PatternInfo{}, false
	}

	bearishStrength := clamp01(c3Body / c3Range)
	confidence := clamp01(0.7 + bearishStrength*0.15)
	ratio := d.ratios.For(candidate.EveningStar)
	return candidate.PatternInfo{
		Type:            candidate.EveningStar,
		Confidence:      confidence,
		Strength:        confidence * 100,
		Description:     "evening star after uptrend",
		TargetRatio:     ratio.Target,
		StopRatio:       ratio.Stop,
		MaxHoldingHours: ratio.MaxHoldingHours,
	}, true
}
