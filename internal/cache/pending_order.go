package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/logging"
	"github.com/redis/go-redis/v9"
)

const (
	pendingOrderKeyPrefix = "engine:pending_order"
	pendingOrderListKey   = "engine:pending_orders:list"
)

// PendingOrderInfo is the tracked state of an outstanding buy or sell
// order, keyed by stock code + order number.
type PendingOrderInfo struct {
	OrderNo   string    `json:"order_no"`
	StockCode string    `json:"stock_code"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	PlacedAt  time.Time `json:"placed_at"`
	TimeoutAt time.Time `json:"timeout_at"`
}

// TimeoutFunc is invoked when an order has aged past its timeout; it
// should poll order status and/or cancel on the brokerage gateway.
type TimeoutFunc func(info PendingOrderInfo)

// PendingOrderTracker tracks outstanding orders in Redis with a timeout,
// for the engine's single-account order model: a partial-fill poll plus
// a hard pending-order max age past which the order is cancelled.
type PendingOrderTracker struct {
	client        *redis.Client
	logger        *logging.Logger
	timeout       time.Duration
	checkInterval time.Duration

	mu          sync.Mutex
	onTimeout   TimeoutFunc
	stopChan    chan struct{}
	wg          sync.WaitGroup
	running     bool
}

// NewPendingOrderTracker builds a tracker with the given timeout (default:
// 10 minutes).
func NewPendingOrderTracker(client *redis.Client, timeout time.Duration, logger *logging.Logger) *PendingOrderTracker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &PendingOrderTracker{
		client:        client,
		logger:        logger,
		timeout:       timeout,
		checkInterval: 10 * time.Second,
	}
}

// SetTimeoutHandler sets the callback invoked for orders that have aged
// past their timeout.
func (t *PendingOrderTracker) SetTimeoutHandler(fn TimeoutFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTimeout = fn
}

func (t *PendingOrderTracker) key(stockCode, orderNo string) string {
	return fmt.Sprintf("%s:%s:%s", pendingOrderKeyPrefix, stockCode, orderNo)
}

// Track records a newly-submitted order.
func (t *PendingOrderTracker) Track(ctx context.Context, info PendingOrderInfo) error {
	if t.client == nil {
		return fmt.Errorf("pending order tracker: no redis client")
	}
	info.PlacedAt = time.Now()
	info.TimeoutAt = info.PlacedAt.Add(t.timeout)

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("pending order tracker: marshal: %w", err)
	}

	key := t.key(info.StockCode, info.OrderNo)
	ttl := t.timeout + 60*time.Second
	if err := t.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("pending order tracker: set: %w", err)
	}
	if err := t.client.SAdd(ctx, pendingOrderListKey, key).Err(); err != nil && t.logger != nil {
		t.logger.Warn("pending order tracker: failed to add to list", "error", err)
	}
	return nil
}

// Untrack removes an order from tracking (called on fill/reject).
func (t *PendingOrderTracker) Untrack(ctx context.Context, stockCode, orderNo string) {
	if t.client == nil {
		return
	}
	key := t.key(stockCode, orderNo)
	t.client.Del(ctx, key)
	t.client.SRem(ctx, pendingOrderListKey, key)
}

// All returns every currently-tracked order.
func (t *PendingOrderTracker) All(ctx context.Context) ([]PendingOrderInfo, error) {
	if t.client == nil {
		return nil, fmt.Errorf("pending order tracker: no redis client")
	}
	keys, err := t.client.SMembers(ctx, pendingOrderListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pending order tracker: smembers: %w", err)
	}

	var out []PendingOrderInfo
	for _, key := range keys {
		data, err := t.client.Get(ctx, key).Result()
		if err == redis.Nil {
			t.client.SRem(ctx, pendingOrderListKey, key)
			continue
		} else if err != nil {
			continue
		}
		var info PendingOrderInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Start launches the background timeout monitor.
func (t *PendingOrderTracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.monitorLoop()
}

// Stop halts the background timeout monitor and waits for it to exit.
func (t *PendingOrderTracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *PendingOrderTracker) monitorLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.checkTimeouts()
		}
	}
}

func (t *PendingOrderTracker) checkTimeouts() {
	ctx := context.Background()
	orders, err := t.All(ctx)
	if err != nil || len(orders) == 0 {
		return
	}

	now := time.Now()
	t.mu.Lock()
	handler := t.onTimeout
	t.mu.Unlock()

	for _, order := range orders {
		if now.After(order.TimeoutAt) && handler != nil {
			handler(order)
		}
	}
}
