// Package indicator computes the technical indicators SignalEvaluator's
// technical score draws on: RSI, MACD, and Bollinger Bands over daily
// OHLCV bars.
package indicator

import (
	"math"

	"github.com/candletrader/engine/internal/candidate"
)

// closesChrono returns closing prices oldest-first from a most-recent-first
// bar slice.
func closesChrono(bars []candidate.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[len(bars)-1-i] = b.Close
	}
	return out
}

func sma(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	sum := 0.0
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// emaSeries returns the EMA value at every index from `period-1` onward
// (earlier entries are zero), seeded by the SMA of the first `period`
// values.
func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	mult := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	seed := sma(closes[:period], period)
	out[period-1] = seed
	ema := seed
	for i := period; i < len(closes); i++ {
		ema = closes[i]*mult + ema*(1-mult)
		out[i] = ema
	}
	return out
}

// RSI computes the Relative Strength Index over the most recent `period`
// daily changes. Returns 50 (neutral) when there isn't enough history.
func RSI(bars []candidate.Bar, period int) float64 {
	closes := closesChrono(bars)
	if len(closes) < period+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the MACD line, its signal line (EMA of the MACD line),
// and the histogram, plus enough history to tell whether the histogram is
// turning up.
type MACDResult struct {
	MACD           float64
	Signal         float64
	Histogram      float64
	PrevHistogram  float64
}

// TurningUp reports whether the MACD histogram increased from the prior
// bar to the current one — SignalEvaluator's RSI-overbought override
// condition.
func (m MACDResult) TurningUp() bool {
	return m.Histogram > m.PrevHistogram
}

// MACD computes MACD(fastPeriod, slowPeriod, signalPeriod) by taking the
// EMA of the full fast-minus-slow MACD line series, not a one-shot
// approximation.
func MACD(bars []candidate.Bar, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	closes := closesChrono(bars)
	if len(closes) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	fastEMA := emaSeries(closes, fastPeriod)
	slowEMA := emaSeries(closes, slowPeriod)

	macdLine := make([]float64, len(closes))
	for i := slowPeriod - 1; i < len(closes); i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	macdSeries := macdLine[slowPeriod-1:]

	signalSeries := emaSeries(macdSeries, signalPeriod)
	n := len(signalSeries)
	if n < 2 {
		return MACDResult{}
	}

	curMACD := macdSeries[n-1]
	curSignal := signalSeries[n-1]
	prevMACD := macdSeries[n-2]
	prevSignal := signalSeries[n-2]

	return MACDResult{
		MACD:          curMACD,
		Signal:        curSignal,
		Histogram:     curMACD - curSignal,
		PrevHistogram: prevMACD - prevSignal,
	}
}

// BollingerBands holds the upper/middle/lower band values.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Position returns where currentPrice sits within the bands, in [0,1]
// (0 = at or below lower band, 1 = at or above upper band).
func (b BollingerBands) Position(currentPrice float64) float64 {
	if b.Upper <= b.Lower {
		return 0.5
	}
	pos := (currentPrice - b.Lower) / (b.Upper - b.Lower)
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

// Bollinger computes Bollinger Bands(period, stdDevMultiplier).
func Bollinger(bars []candidate.Bar, period int, stdDevMultiplier float64) BollingerBands {
	closes := closesChrono(bars)
	if len(closes) < period {
		return BollingerBands{}
	}

	middle := sma(closes, period)
	variance := 0.0
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		diff := closes[i] - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerBands{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}
