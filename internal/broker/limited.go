package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// LimitedClient decorates a Client with an overall request-rate limiter,
// a per-endpoint limiter, and a circuit breaker: overall budget +
// per-endpoint budget + trip-on-consecutive-failures.
type LimitedClient struct {
	inner    Client
	overall  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker

	mu        sync.Mutex
	perEndpoint map[Endpoint]*rate.Limiter
}

// NewLimitedClient wraps inner with a conservative default rate budget
// (≤20/s overall, ≤2/s per endpoint) and a breaker that opens after 5
// consecutive failures and probes again after 30s.
func NewLimitedClient(inner Client) *LimitedClient {
	st := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &LimitedClient{
		inner:       inner,
		overall:     rate.NewLimiter(rate.Limit(20), 20),
		breaker:     gobreaker.NewCircuitBreaker(st),
		perEndpoint: make(map[Endpoint]*rate.Limiter),
	}
}

func (l *LimitedClient) endpointLimiter(ep Endpoint) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perEndpoint[ep]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(2), 2)
		l.perEndpoint[ep] = lim
	}
	return lim
}

// call enforces both limiter tiers then runs fn through the breaker.
func (l *LimitedClient) call(ctx context.Context, ep Endpoint, fn func() (interface{}, error)) (interface{}, error) {
	if err := l.overall.Wait(ctx); err != nil {
		return nil, fmt.Errorf("broker: overall rate limit wait: %w", err)
	}
	if err := l.endpointLimiter(ep).Wait(ctx); err != nil {
		return nil, fmt.Errorf("broker: %s rate limit wait: %w", ep, err)
	}
	return l.breaker.Execute(fn)
}

func (l *LimitedClient) CurrentPrice(ctx context.Context, stockCode string) (Quote, error) {
	v, err := l.call(ctx, EndpointQuote, func() (interface{}, error) {
		return l.inner.CurrentPrice(ctx, stockCode)
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (l *LimitedClient) DailyChart(ctx context.Context, stockCode string, period ChartPeriod, adjusted bool) ([]candidate.Bar, error) {
	v, err := l.call(ctx, EndpointChart, func() (interface{}, error) {
		return l.inner.DailyChart(ctx, stockCode, period, adjusted)
	})
	if err != nil {
		return nil, err
	}
	return v.([]candidate.Bar), nil
}

func (l *LimitedClient) RankFluctuation(ctx context.Context, market candidate.MarketType, minRatePct float64) ([]RankEntry, error) {
	v, err := l.call(ctx, EndpointRank, func() (interface{}, error) {
		return l.inner.RankFluctuation(ctx, market, minRatePct)
	})
	if err != nil {
		return nil, err
	}
	return v.([]RankEntry), nil
}

func (l *LimitedClient) RankVolume(ctx context.Context, market candidate.MarketType, minVolume float64) ([]RankEntry, error) {
	v, err := l.call(ctx, EndpointRank, func() (interface{}, error) {
		return l.inner.RankVolume(ctx, market, minVolume)
	})
	if err != nil {
		return nil, err
	}
	return v.([]RankEntry), nil
}

func (l *LimitedClient) RankDisparity(ctx context.Context, market candidate.MarketType, window int) ([]RankEntry, error) {
	v, err := l.call(ctx, EndpointRank, func() (interface{}, error) {
		return l.inner.RankDisparity(ctx, market, window)
	})
	if err != nil {
		return nil, err
	}
	return v.([]RankEntry), nil
}

func (l *LimitedClient) Balance(ctx context.Context) (Balance, error) {
	v, err := l.call(ctx, EndpointBalance, func() (interface{}, error) {
		return l.inner.Balance(ctx)
	})
	if err != nil {
		return Balance{}, err
	}
	return v.(Balance), nil
}

func (l *LimitedClient) OrderBuy(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error) {
	v, err := l.call(ctx, EndpointOrder, func() (interface{}, error) {
		return l.inner.OrderBuy(ctx, stockCode, quantity, price)
	})
	if err != nil {
		return OrderResult{}, err
	}
	return v.(OrderResult), nil
}

func (l *LimitedClient) OrderSell(ctx context.Context, stockCode string, quantity int, price float64) (OrderResult, error) {
	v, err := l.call(ctx, EndpointOrder, func() (interface{}, error) {
		return l.inner.OrderSell(ctx, stockCode, quantity, price)
	})
	if err != nil {
		return OrderResult{}, err
	}
	return v.(OrderResult), nil
}

func (l *LimitedClient) CancelOrder(ctx context.Context, orderNo string) error {
	_, err := l.call(ctx, EndpointOrder, func() (interface{}, error) {
		return nil, l.inner.CancelOrder(ctx, orderNo)
	})
	return err
}

var _ Client = (*LimitedClient)(nil)
