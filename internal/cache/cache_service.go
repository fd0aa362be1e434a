// Package cache provides Redis-backed caching with graceful degradation:
// the pattern-config lazy cache PatternDetector/RiskPolicy read through,
// and the pending-order timeout tracker EntryExecutor/ExitManager rely on.
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

// Service wraps a Redis client with a small circuit breaker: after
// maxFailures consecutive errors it marks itself unhealthy and callers
// should fall back to their own defaults until a health check succeeds.
type Service struct {
	client *redis.Client
	logger *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis and verifies connectivity once. A failed
// initial ping does not return an error — the service starts degraded and
// retries lazily on the next Get/Set after checkInterval.
func NewService(addr, password string, db int, logger *logging.Logger) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warn("redis initial connection failed, starting degraded", "error", err)
		}
		s.lastCheck = time.Now()
		return s
	}
	s.healthy = true
	s.lastCheck = time.Now()
	return s
}

// IsHealthy reports whether Redis is currently believed reachable.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures {
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

func (s *Service) checkHealth(ctx context.Context) {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err == nil {
		s.recordSuccess()
	}
}

// GetJSON retrieves and unmarshals a cached JSON value. Returns
// redis.Nil on cache miss (not treated as a circuit-breaker failure).
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) error {
	s.checkHealth(ctx)
	if !s.IsHealthy() {
		return fmt.Errorf("cache: redis unavailable (circuit open)")
	}

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return err
		}
		s.recordFailure()
		return fmt.Errorf("cache: get %s: %w", key, err)
	}
	s.recordSuccess()
	return json.Unmarshal([]byte(data), dest)
}

// SetJSON marshals and stores value with the given TTL.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.checkHealth(ctx)
	if !s.IsHealthy() {
		return fmt.Errorf("cache: redis unavailable (circuit open)")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

// Client exposes the underlying client for components (e.g. the pending
// order tracker) that need raw Redis ops (SAdd/SRem/Incr).
func (s *Service) Client() *redis.Client { return s.client }

// Close closes the Redis connection.
func (s *Service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
