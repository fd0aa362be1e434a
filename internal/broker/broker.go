// Package broker defines the brokerage REST contract the engine consumes.
// The brokerage itself — auth, HTTP transport, JSON wire shapes — is an
// external collaborator; this package only fixes the interface and wraps
// any implementation with rate limiting and a circuit breaker.
package broker

import (
	"context"
	"time"

	"github.com/candletrader/engine/internal/candidate"
)

// Quote is the quotation snapshot returned by current_price.
type Quote struct {
	StockCode          string
	CurrentPrice       float64
	Open               float64
	High               float64
	Low                float64
	PrevClose          float64
	AccumulatedVolume  float64
	AvgVolume          float64
	DayChangePct       float64
	ListedName         string
}

// ChartPeriod selects the daily_chart granularity.
type ChartPeriod string

const (
	PeriodDay   ChartPeriod = "D"
	PeriodWeek  ChartPeriod = "W"
	PeriodMonth ChartPeriod = "M"
	PeriodYear  ChartPeriod = "Y"
)

// RankEntry is one row of a rank_fluctuation/rank_volume/rank_disparity
// response.
type RankEntry struct {
	StockCode string
	D5        float64
	D20       float64
	D60       float64
}

// Holding is a single position row from balance().
type Holding struct {
	StockCode      string
	StockName      string
	Quantity       int
	AvgPrice       float64
	CurrentPrice   float64
	ProfitLossRate float64
}

// Balance is the account snapshot EntryExecutor and the reconciler's
// holdings cross-check consume.
type Balance struct {
	AvailableAmount float64
	CashBalance     float64
	TotalValue      float64
	Holdings        []Holding
}

// OrderResult is the outcome of order_buy/order_sell.
type OrderResult struct {
	Success bool
	OrderNo string
	Error   string
}

// Client is the brokerage REST contract the core depends on. Names are
// semantic, not the literal wire endpoint names.
type Client interface {
	CurrentPrice(ctx context.Context, stockCode string) (Quote, error)
	DailyChart(ctx context.Context, stockCode string, period ChartPeriod, adjusted bool) ([]candidate.Bar, error)
	RankFluctuation(ctx context.Context, market candidate.MarketType, minRatePct float64) ([]RankEntry, error)
	RankVolume(ctx context.Context, market candidate.MarketType, minVolume float64) ([]RankEntry, error)
	RankDisparity(ctx context.Context, market candidate.MarketType, window int) ([]RankEntry, error)
	Balance(ctx context.Context) (Balance, error)
	OrderBuy(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error)
	OrderSell(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error)
	CancelOrder(ctx context.Context, orderNo string) error
}

// Endpoint tags the per-endpoint rate-limit bucket; overall throughput is
// capped separately (≤20/s overall, ≤2/s per endpoint).
type Endpoint string

const (
	EndpointQuote   Endpoint = "quote"
	EndpointChart   Endpoint = "chart"
	EndpointRank    Endpoint = "rank"
	EndpointBalance Endpoint = "balance"
	EndpointOrder   Endpoint = "order"
)

// timeoutDefault is the per-REST-call budget.
const timeoutDefault = 5 * time.Second
