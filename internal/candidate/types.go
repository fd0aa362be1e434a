// Package candidate defines the central trading domain model: the tracked
// symbol, its OHLCV cache, pattern evidence, risk plan, and lifecycle state.
package candidate

import "time"

// MarketType identifies which Korean exchange a stock trades on.
type MarketType string

const (
	KOSPI  MarketType = "KOSPI"
	KOSDAQ MarketType = "KOSDAQ"
)

// Status is the candidate lifecycle state. See the transition graph in
// CanTransition.
type Status string

const (
	StatusScanning     Status = "SCANNING"
	StatusWatching     Status = "WATCHING"
	StatusBuyReady     Status = "BUY_READY"
	StatusPendingOrder Status = "PENDING_ORDER"
	StatusEntered      Status = "ENTERED"
	StatusSellReady    Status = "SELL_READY"
	StatusExited       Status = "EXITED"
	StatusStopped      Status = "STOPPED"
)

// TradeSignal is the discrete action hint produced by the evaluator.
type TradeSignal string

const (
	StrongBuy  TradeSignal = "STRONG_BUY"
	Buy        TradeSignal = "BUY"
	Hold       TradeSignal = "HOLD"
	Sell       TradeSignal = "SELL"
	StrongSell TradeSignal = "STRONG_SELL"
)

// PendingOrderType distinguishes which side a PENDING_ORDER candidate is
// waiting on.
type PendingOrderType string

const (
	PendingBuy  PendingOrderType = "BUY"
	PendingSell PendingOrderType = "SELL"
)

// Bar is a single OHLCV daily bar. Cached sequences are most-recent-first.
type Bar struct {
	Date       string // YYYYMMDD
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	VolumeRate float64
}

// PatternType enumerates the reversal patterns PatternDetector can emit.
type PatternType string

const (
	Hammer            PatternType = "HAMMER"
	InvertedHammer    PatternType = "INVERTED_HAMMER"
	BullishEngulfing  PatternType = "BULLISH_ENGULFING"
	PiercingLine      PatternType = "PIERCING_LINE"
	MorningStar       PatternType = "MORNING_STAR"
	ShootingStar      PatternType = "SHOOTING_STAR"
	BearishEngulfing  PatternType = "BEARISH_ENGULFING"
	DarkCloudCover    PatternType = "DARK_CLOUD_COVER"
	EveningStar       PatternType = "EVENING_STAR"
)

// PatternInfo is immutable once produced by the detector.
type PatternInfo struct {
	Type            PatternType
	Confidence      float64 // [0,1]
	Strength        float64 // [0,100]
	Description     string
	TargetRatio     float64 // e.g. 0.018 for +1.8%
	StopRatio       float64 // e.g. 0.015 for -1.5%
	MaxHoldingHours float64
	Metadata        map[string]interface{}
}

// RiskPlan is the position-sizing and exit plan derived by RiskPolicy. It
// may be adjusted later by the SignalEvaluator subject to anti-thrash rules.
type RiskPlan struct {
	PositionSizePct  float64
	TargetPrice      float64
	StopLossPrice    float64
	TrailingStopPct  float64
	MaxHoldingHours  float64
	RiskScore        float64
}

// AdjustmentDirection records whether a RiskPlan change tightened toward
// safety, loosened, or was neutral — used by the anti-thrash rule.
type AdjustmentDirection string

const (
	AdjustUp      AdjustmentDirection = "UP"
	AdjustDown    AdjustmentDirection = "DOWN"
	AdjustNeutral AdjustmentDirection = "NEUTRAL"
)

// EntryConditions is a snapshot of boolean entry gates and why they failed.
type EntryConditions struct {
	VolumeRatioOK    bool
	RSIOK            bool
	PriceBandOK      bool
	TimeInSessionOK  bool
	PatternConfOK    bool
	OverallPassed    bool
	FailReasons      []string
}

// OrderRecord is a completed (filled, rejected, or cancelled) order kept
// for audit/history purposes.
type OrderRecord struct {
	OrderNo    string
	Side       string // "BUY" or "SELL"
	Price      float64
	Quantity   int
	Status     string // "FILLED", "REJECTED", "CANCELLED"
	PlacedAt   time.Time
	ResolvedAt time.Time
}

// Candidate is the central tracked entity: a symbol moving through the
// scan -> watch -> entry -> exit lifecycle.
type Candidate struct {
	// Identity
	StockCode  string
	StockName  string
	MarketType MarketType

	// Market state
	CurrentPrice     float64
	LastPriceUpdate  time.Time

	// OHLCV cache, most-recent-first
	OHLCV           []Bar
	OHLCVUpdateDate string // YYYYMMDD

	// Pattern evidence, ordered; PrimaryPattern is recomputed on write
	Patterns       []PatternInfo
	PrimaryPattern *PatternInfo

	// Signal
	TradeSignal     TradeSignal
	SignalStrength  float64
	SignalUpdatedAt time.Time

	// Risk plan
	Risk RiskPlan

	// Lifecycle
	Status Status

	// Orders
	PendingBuyOrderNo  string
	PendingSellOrderNo string
	PendingOrderTime   *time.Time
	PendingOrderType   PendingOrderType
	OrderHistory       []OrderRecord

	// Performance
	EntryTime        *time.Time
	EntryPrice       float64
	EntryQuantity    int
	BuyExecutionTime *time.Time
	ExitTime         *time.Time
	ExitPrice        float64
	ExitReason       string
	MaxPriceSeen     float64
	MinPriceSeen     float64
	RealizedPnL      float64
	RealizedPnLPct   float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64

	// Metadata: free-form, includes entry source, DB id, pattern-at-entry,
	// auto_exit_reason, final_exit_confirmed, last_buy_order_time.
	Metadata map[string]interface{}

	// Entry gate snapshot
	EntryConditions EntryConditions

	// EntryPriority drives eviction order among WATCHING rows and the
	// priority_multiplier used by EntryExecutor's sizing.
	EntryPriority float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a Candidate seeded in SCANNING, ready for the scanner to
// populate and transition to WATCHING/BUY_READY.
func New(stockCode, stockName string, market MarketType) *Candidate {
	now := time.Now()
	return &Candidate{
		StockCode:  stockCode,
		StockName:  stockName,
		MarketType: market,
		Status:     StatusScanning,
		TradeSignal: Hold,
		Metadata:   make(map[string]interface{}),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep-enough copy suitable as an immutable read snapshot:
// slices and maps are copied so a reader mutating its copy cannot race
// with the store's single writer.
func (c *Candidate) Clone() *Candidate {
	cp := *c
	cp.OHLCV = append([]Bar(nil), c.OHLCV...)
	cp.Patterns = append([]PatternInfo(nil), c.Patterns...)
	if c.PrimaryPattern != nil {
		pp := *c.PrimaryPattern
		cp.PrimaryPattern = &pp
	}
	cp.OrderHistory = append([]OrderRecord(nil), c.OrderHistory...)
	cp.Metadata = make(map[string]interface{}, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// HasPendingOrder reports whether an unresolved order of the given kind is
// outstanding.
func (c *Candidate) HasPendingOrder(kind PendingOrderType) bool {
	switch kind {
	case PendingBuy:
		return c.PendingBuyOrderNo != ""
	case PendingSell:
		return c.PendingSellOrderNo != ""
	default:
		return false
	}
}

// IsReadyForEntry reports the entry gate: WATCHING or BUY_READY, not
// already PENDING_ORDER, a BUY/STRONG_BUY signal, and a passed entry
// conditions snapshot.
func (c *Candidate) IsReadyForEntry() bool {
	if c.Status != StatusWatching && c.Status != StatusBuyReady {
		return false
	}
	if c.Status == StatusPendingOrder {
		return false
	}
	if c.TradeSignal != Buy && c.TradeSignal != StrongBuy {
		return false
	}
	return c.EntryConditions.OverallPassed
}

// FreshOHLCV reports whether the cached OHLCV was refreshed today.
func (c *Candidate) FreshOHLCV(today string) bool {
	return c.OHLCVUpdateDate == today
}

// SetOHLCV replaces the entire cache for a date — insertion is a full
// replace, never an append, keeping the most-recent-first invariant.
func (c *Candidate) SetOHLCV(date string, bars []Bar) {
	c.OHLCV = append([]Bar(nil), bars...)
	c.OHLCVUpdateDate = date
}

// AddPattern appends detected pattern evidence and recomputes the primary
// (highest-strength) pattern.
func (c *Candidate) AddPattern(p PatternInfo) {
	c.Patterns = append(c.Patterns, p)
	c.recomputePrimary()
}

// SetPatterns replaces all pattern evidence (used when the detector is
// re-run against refreshed OHLCV).
func (c *Candidate) SetPatterns(patterns []PatternInfo) {
	c.Patterns = append([]PatternInfo(nil), patterns...)
	c.recomputePrimary()
}

func (c *Candidate) recomputePrimary() {
	if len(c.Patterns) == 0 {
		c.PrimaryPattern = nil
		return
	}
	best := c.Patterns[0]
	for _, p := range c.Patterns[1:] {
		if p.Strength > best.Strength {
			best = p
		}
	}
	c.PrimaryPattern = &best
}
