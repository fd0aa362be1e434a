package scanner

import (
	"time"

	"github.com/candletrader/engine/internal/candidate"
)

// Config holds the scan cadence and filter thresholds.
type Config struct {
	Enabled         bool
	ScanInterval    time.Duration
	MaxScanStocks   int
	MinRatePct      float64
	MinPrice        float64
	MaxPrice        float64
	MinVolume       float64
	BatchSize       int
}

// rankedStock is a deduped candidate symbol surfaced by rank_fluctuation
// or rank_volume, before any price/volume filtering.
type rankedStock struct {
	StockCode string
	Market    candidate.MarketType
}

// Result summarizes one scan cycle, kept for operator visibility
// (internal/httpapi's status endpoint reads the last one).
type Result struct {
	ScanID         string
	StartTime      time.Time
	EndTime        time.Time
	StocksScanned  int
	CandidatesSeeded int
}
