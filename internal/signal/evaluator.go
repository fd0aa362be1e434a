// Package signal implements SignalEvaluator: the composite re-scoring
// pass that runs between MarketScanner and EntryExecutor on every
// orchestrator tick. It re-scores WATCHING/BUY_READY candidates toward a
// buy decision (Path A) and ENTERED candidates toward an exit decision
// (Path B), and guards RiskPlan adjustments against thrash.
package signal

import (
	"context"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/indicator"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/patterns"
	"github.com/candletrader/engine/internal/risk"
	"github.com/candletrader/engine/internal/store"
	"github.com/candletrader/engine/internal/tradingwindow"
)

const (
	batchSize       = 5
	interBatchSleep = 500 * time.Millisecond

	rsiPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	bollingerPeriod  = 20
	bollingerStdDevs = 2.0

	stopProximityBand = 0.05
)

// Thresholds holds the configurable composite-score cutoffs, plus the
// promotion-gate inputs (pattern confidence, volume ratio, price band,
// RSI overbought line) mirrored from internal/config.
type Thresholds struct {
	StrongBuy            float64
	Buy                  float64
	StrongSell           float64
	Sell                 float64
	MinPatternConfidence float64
	VolumeRatioMin       float64
	RSIOverbought        float64
	MinPrice             float64
	MaxPrice             float64
}

// Evaluator is SignalEvaluator.
type Evaluator struct {
	detector   *patterns.Detector
	riskPolicy *risk.Policy
	guard      *risk.AdjustmentGuard
	window     tradingwindow.Window
	thresholds Thresholds
	logger     *logging.Logger
}

// New builds an Evaluator.
func New(detector *patterns.Detector, riskPolicy *risk.Policy, guard *risk.AdjustmentGuard, window tradingwindow.Window, thresholds Thresholds, logger *logging.Logger) *Evaluator {
	return &Evaluator{
		detector:   detector,
		riskPolicy: riskPolicy,
		guard:      guard,
		window:     window,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Run executes both paths against the store's current candidates.
func (e *Evaluator) Run(ctx context.Context, st *store.Store) {
	e.runPathA(ctx, st)
	e.runPathB(ctx, st)
}

func (e *Evaluator) runPathA(ctx context.Context, st *store.Store) {
	candidates := st.GetByState(candidate.StatusWatching, candidate.StatusBuyReady)
	e.batchProcess(ctx, candidates, func(c *candidate.Candidate) {
		e.evaluateEntry(st, c)
	})
}

func (e *Evaluator) runPathB(ctx context.Context, st *store.Store) {
	candidates := st.GetByState(candidate.StatusEntered)
	e.batchProcess(ctx, candidates, func(c *candidate.Candidate) {
		e.evaluateExit(st, c)
	})
}

// batchProcess runs fn over items in groups of batchSize concurrently,
// sleeping interBatchSleep between groups to bound external API pressure.
func (e *Evaluator) batchProcess(ctx context.Context, items []*candidate.Candidate, fn func(*candidate.Candidate)) {
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]

		done := make(chan struct{}, len(batch))
		for _, c := range batch {
			go func(c *candidate.Candidate) {
				defer func() { done <- struct{}{} }()
				fn(c)
			}(c)
		}
		for range batch {
			<-done
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		if end < len(items) {
			time.Sleep(interBatchSleep)
		}
	}
}

// evaluateEntry is Path A for a single WATCHING/BUY_READY candidate.
func (e *Evaluator) evaluateEntry(st *store.Store, c *candidate.Candidate) {
	if len(c.OHLCV) == 0 {
		return
	}
	fresh := e.detector.Detect(c.OHLCV)

	probe := c.Clone()
	probe.SetPatterns(fresh)
	ec := e.checkEntryConditions(probe)

	patternScore := 0.0
	if probe.PrimaryPattern != nil {
		patternScore = probe.PrimaryPattern.Confidence * 100
	}
	technicalScore := e.technicalScore(probe)
	positionScore := gateScore(ec.OverallPassed)
	riskScore := e.riskScore(probe)
	timeScore := e.window.TimeScore(time.Now())

	composite := patternScore*0.40 + technicalScore*0.30 + positionScore*0.20 + riskScore*0.10 + timeScore*0.00
	signal := classifyBuy(composite, e.thresholds)

	st.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		live.SetPatterns(fresh)
		live.TradeSignal = signal
		live.SignalStrength = composite
		live.SignalUpdatedAt = time.Now()
		live.EntryConditions = ec

		if ec.OverallPassed && live.Status == candidate.StatusWatching && candidate.CanTransition(live.Status, candidate.StatusBuyReady) {
			live.Status = candidate.StatusBuyReady
		} else if !ec.OverallPassed && live.Status == candidate.StatusBuyReady && candidate.CanTransition(live.Status, candidate.StatusWatching) {
			live.Status = candidate.StatusWatching
		}

		e.maybeAdjustRiskPlan(live)
		return nil
	})
}

// evaluateExit is Path B for a single ENTERED candidate.
func (e *Evaluator) evaluateExit(st *store.Store, c *candidate.Candidate) {
	if len(c.OHLCV) == 0 {
		return
	}

	if reversal := e.detector.DetectBearish(c.OHLCV); len(reversal) > 0 {
		st.Mutate(c.StockCode, func(live *candidate.Candidate) error {
			live.TradeSignal = candidate.StrongSell
			live.SignalStrength = 95
			live.SignalUpdatedAt = time.Now()
			live.Metadata["exit_trigger"] = "pattern_reversal"
			return nil
		})
		return
	}

	patternChangeScore := e.patternChangeScore(c)
	riskScore := e.riskScore(c)
	positionScore := gateScore(e.checkEntryConditions(c).OverallPassed)
	timeScore := e.window.TimeScore(time.Now())
	patternScore := 0.0
	if c.PrimaryPattern != nil {
		patternScore = c.PrimaryPattern.Confidence * 100
	}

	composite := patternChangeScore*0.40 + riskScore*0.30 + positionScore*0.20 + timeScore*0.10 + patternScore*0.00
	signal := classifySell(composite, e.thresholds)

	st.Mutate(c.StockCode, func(live *candidate.Candidate) error {
		live.TradeSignal = signal
		live.SignalStrength = composite
		live.SignalUpdatedAt = time.Now()
		return nil
	})
}

func classifyBuy(composite float64, th Thresholds) candidate.TradeSignal {
	switch {
	case composite >= th.StrongBuy:
		return candidate.StrongBuy
	case composite >= th.Buy:
		return candidate.Buy
	default:
		return candidate.Hold
	}
}

func classifySell(composite float64, th Thresholds) candidate.TradeSignal {
	switch {
	case composite >= th.StrongSell:
		return candidate.StrongSell
	case composite >= th.Sell:
		return candidate.Sell
	default:
		return candidate.Hold
	}
}

// gateScore implements the position score rule directly: entry-gate pass
// = 80, else 30. Reused by the exit path against the same gate evaluated
// on the position's current OHLCV, rather than defining a separate
// position score for exits.
func gateScore(passed bool) float64 {
	if passed {
		return 80
	}
	return 30
}

// checkEntryConditions evaluates the detailed promotion gate: volume
// ratio, RSI-not-overbought (unless MACD turning up or price near the
// lower Bollinger band), price band, time-in-session, and pattern
// confidence.
func (e *Evaluator) checkEntryConditions(c *candidate.Candidate) candidate.EntryConditions {
	var ec candidate.EntryConditions
	var fails []string

	volRatio := 0.0
	if len(c.OHLCV) > 0 {
		volRatio = c.OHLCV[0].VolumeRate
	}
	ec.VolumeRatioOK = volRatio >= e.thresholds.VolumeRatioMin
	if !ec.VolumeRatioOK {
		fails = append(fails, "volume_ratio")
	}

	rsi := indicator.RSI(c.OHLCV, rsiPeriod)
	macd := indicator.MACD(c.OHLCV, macdFast, macdSlow, macdSignal)
	bb := indicator.Bollinger(c.OHLCV, bollingerPeriod, bollingerStdDevs)
	overbought := rsi > e.thresholds.RSIOverbought
	nearLowerBand := bb.Position(c.CurrentPrice) <= 0.2
	ec.RSIOK = !overbought || macd.TurningUp() || nearLowerBand
	if !ec.RSIOK {
		fails = append(fails, "rsi_overbought")
	}

	ec.PriceBandOK = c.CurrentPrice >= e.thresholds.MinPrice && c.CurrentPrice <= e.thresholds.MaxPrice
	if !ec.PriceBandOK {
		fails = append(fails, "price_band")
	}

	ec.TimeInSessionOK = e.window.IsOpen(time.Now())
	if !ec.TimeInSessionOK {
		fails = append(fails, "time_in_session")
	}

	ec.PatternConfOK = c.PrimaryPattern != nil && c.PrimaryPattern.Confidence >= e.thresholds.MinPatternConfidence
	if !ec.PatternConfOK {
		fails = append(fails, "pattern_confidence")
	}

	ec.OverallPassed = ec.VolumeRatioOK && ec.RSIOK && ec.PriceBandOK && ec.TimeInSessionOK && ec.PatternConfOK
	ec.FailReasons = fails
	return ec
}

// technicalScore blends RSI/MACD/Bollinger into a single 0-100 figure:
// RSI centered on 40 (oversold/overbought both drag the score down from a
// reversal-buyer's perspective, with oversold less penalized since that's
// exactly this engine's setup), MACD histogram direction, and position
// within the bands.
func (e *Evaluator) technicalScore(c *candidate.Candidate) float64 {
	if len(c.OHLCV) < bollingerPeriod {
		return 50
	}
	rsi := indicator.RSI(c.OHLCV, rsiPeriod)
	macd := indicator.MACD(c.OHLCV, macdFast, macdSlow, macdSignal)
	bb := indicator.Bollinger(c.OHLCV, bollingerPeriod, bollingerStdDevs)

	rsiScore := 100 - abs(rsi-40) // centered near 40, the reversal-buy sweet spot
	if rsiScore < 0 {
		rsiScore = 0
	}

	macdScore := 50.0
	if macd.TurningUp() {
		macdScore = 75
	} else if macd.Histogram < macd.PrevHistogram {
		macdScore = 25
	}

	bandScore := (1 - bb.Position(c.CurrentPrice)) * 100 // near lower band favors a reversal buy

	return clampScore((rsiScore + macdScore + bandScore) / 3)
}

// riskScore measures proximity to the stop and, once in a position, the
// unrealized P&L tier. Higher means "closer to the stop / worse P&L" —
// for Path A this is the support zone a reversal pattern is supposed to
// fire in, so a small positive weight there is intentional; for Path B
// the same high score drives exit urgency via its larger weight.
func (e *Evaluator) riskScore(c *candidate.Candidate) float64 {
	if c.CurrentPrice == 0 || c.Risk.StopLossPrice == 0 {
		return 50
	}
	toStop := (c.CurrentPrice - c.Risk.StopLossPrice) / c.CurrentPrice
	var proximity float64
	if toStop <= 0 {
		proximity = 1
	} else {
		proximity = clamp01(1 - toStop/stopProximityBand)
	}
	score := proximity * 70

	if c.Status == candidate.StatusEntered {
		score = score*0.5 + pnlTierScore(c.UnrealizedPnLPct)*0.5
	}
	return clampScore(score)
}

func pnlTierScore(pnlPct float64) float64 {
	switch {
	case pnlPct <= -0.03:
		return 90
	case pnlPct <= -0.015:
		return 70
	case pnlPct < 0:
		return 50
	case pnlPct < 0.01:
		return 30
	default:
		return 10
	}
}

// patternChangeScore measures how much the original bullish setup has
// deteriorated: re-detecting against current OHLCV and finding nothing
// scores high (setup no longer confirmed); finding it still confirmed but
// at lower confidence scores proportionally.
func (e *Evaluator) patternChangeScore(c *candidate.Candidate) float64 {
	fresh := e.detector.Detect(c.OHLCV)
	if len(fresh) == 0 {
		return 70
	}
	return clampScore((1 - fresh[0].Confidence) * 100)
}

// maybeAdjustRiskPlan re-derives the RiskPlan and applies it only if the
// anti-thrash guard allows it.
func (e *Evaluator) maybeAdjustRiskPlan(c *candidate.Candidate) {
	if c.PrimaryPattern == nil {
		return
	}
	proposed := e.riskPolicy.Derive(c, risk.MarketCondition{})

	direction := candidate.AdjustNeutral
	if proposed.PositionSizePct > c.Risk.PositionSizePct {
		direction = candidate.AdjustUp
	} else if proposed.PositionSizePct < c.Risk.PositionSizePct {
		direction = candidate.AdjustDown
	}
	tightensToSafety := c.Risk.StopLossPrice != 0 && proposed.StopLossPrice > c.Risk.StopLossPrice

	if e.guard.Allow(c.StockCode, direction, tightensToSafety, time.Now()) {
		c.Risk = proposed
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
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

func clampScore(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
