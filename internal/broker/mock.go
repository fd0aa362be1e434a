package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/candidate"
)

// MockClient is a dry-run Client: it never talks to a real brokerage. It
// answers quote/chart/rank reads with synthetic data seeded once at
// construction, and settles every accepted order immediately against an
// in-memory cash balance at the requested price (a buy costing more than
// the available cash is rejected). It records no holdings and emits no
// execution notices. Used in dry-run mode (cfg.Trading.DryRun,
// BrokerageConfig.MockMode) without network credentials. Not a simulation
// of market microstructure — just enough of the interface to drive the
// orchestrator loop in dry-run mode.
type MockClient struct {
	mu           sync.Mutex
	orderSeq     int
	balance      Balance
	universe     []string
	rng          *rand.Rand
}

// NewMockClient seeds a small synthetic universe and an opening cash
// balance.
func NewMockClient(universe []string, startingCash float64) *MockClient {
	return &MockClient{
		universe: universe,
		rng:      rand.New(rand.NewSource(1)),
		balance: Balance{
			AvailableAmount: startingCash,
			CashBalance:     startingCash,
			TotalValue:      startingCash,
		},
	}
}

func (m *MockClient) CurrentPrice(ctx context.Context, stockCode string) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.basePrice(stockCode)
	price := base * (1 + (m.rng.Float64()-0.5)*0.02)
	return Quote{
		StockCode:         stockCode,
		CurrentPrice:      price,
		Open:              base,
		High:              price * 1.01,
		Low:               price * 0.99,
		PrevClose:         base,
		AccumulatedVolume: 50000 + m.rng.Float64()*50000,
		AvgVolume:         50000,
		DayChangePct:      (price - base) / base,
		ListedName:        stockCode,
	}, nil
}

func (m *MockClient) DailyChart(ctx context.Context, stockCode string, period ChartPeriod, adjusted bool) ([]candidate.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.basePrice(stockCode)
	bars := make([]candidate.Bar, 0, 20)
	now := time.Now()
	price := base
	for i := 0; i < 20; i++ {
		open := price
		close := open * (1 + (m.rng.Float64()-0.5)*0.015)
		high := max64(open, close) * 1.005
		low := min64(open, close) * 0.995
		bars = append(bars, candidate.Bar{
			Date:   now.AddDate(0, 0, -i).Format("20060102"),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 30000 + m.rng.Float64()*40000,
		})
		price = close
	}
	return bars, nil
}

func (m *MockClient) RankFluctuation(ctx context.Context, market candidate.MarketType, minRatePct float64) ([]RankEntry, error) {
	return m.rankEntries(), nil
}

func (m *MockClient) RankVolume(ctx context.Context, market candidate.MarketType, minVolume float64) ([]RankEntry, error) {
	return m.rankEntries(), nil
}

func (m *MockClient) RankDisparity(ctx context.Context, market candidate.MarketType, window int) ([]RankEntry, error) {
	return m.rankEntries(), nil
}

func (m *MockClient) Balance(ctx context.Context) (Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *MockClient) OrderBuy(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cost := price * float64(quantity)
	if cost > m.balance.AvailableAmount {
		return OrderResult{Success: false, Error: "insufficient funds"}, nil
	}
	m.balance.AvailableAmount -= cost
	m.balance.CashBalance -= cost
	m.orderSeq++
	return OrderResult{Success: true, OrderNo: m.nextOrderNoLocked()}, nil
}

func (m *MockClient) OrderSell(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proceeds := price * float64(quantity)
	m.balance.AvailableAmount += proceeds
	m.balance.CashBalance += proceeds
	m.orderSeq++
	return OrderResult{Success: true, OrderNo: m.nextOrderNoLocked()}, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderNo string) error {
	return nil
}

func (m *MockClient) nextOrderNoLocked() string {
	return fmt.Sprintf("MOCK-%06d", m.orderSeq)
}

func (m *MockClient) basePrice(stockCode string) float64 {
	h := 0
	for _, r := range stockCode {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return float64(5000 + h%95000)
}

func (m *MockClient) rankEntries() []RankEntry {
	entries := make([]RankEntry, 0, len(m.universe))
	for _, code := range m.universe {
		entries = append(entries, RankEntry{StockCode: code, D5: 1.5, D20: 1.2, D60: 1.1})
	}
	return entries
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var _ Client = (*MockClient)(nil)
