// Package persistence records candidate/pattern/trade history to
// Postgres. All writes are best-effort: failures are logged and never
// block trading.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/candletrader/engine/internal/cache"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/logging"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the handful of write paths the
// trading core calls: candidate seeding, pattern detection, and
// position open/close records.
type Store struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds connection parameters.
type Config struct {
	DSN      string
	MaxConns int32
}

// New connects to Postgres and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthCheck pings the connection pool, used by httpapi's /health.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// warn logs a best-effort-write failure without propagating it — the
// contract every method below follows.
func (s *Store) warn(op string, err error) {
	if s.logger != nil {
		s.logger.Warn("persistence write failed", "op", op, "error", err)
	}
}

// RecordCandidate upserts a candidate record.
func (s *Store) RecordCandidate(ctx context.Context, c *candidate.Candidate) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candle_candidates (stock_code, stock_name, market_type, status, current_price, trade_signal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stock_code) DO UPDATE SET
			status = EXCLUDED.status,
			current_price = EXCLUDED.current_price,
			trade_signal = EXCLUDED.trade_signal,
			updated_at = EXCLUDED.updated_at
	`, c.StockCode, c.StockName, c.MarketType, c.Status, c.CurrentPrice, c.TradeSignal, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		s.warn("record_candidate", err)
	}
}

// RecordPattern persists detected pattern evidence, mirroring
// record_candle_pattern.
func (s *Store) RecordPattern(ctx context.Context, stockCode string, p candidate.PatternInfo, detectedAt time.Time) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candle_patterns (stock_code, pattern_type, confidence, strength, target_ratio, stop_ratio, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, stockCode, p.Type, p.Confidence, p.Strength, p.TargetRatio, p.StopRatio, detectedAt)
	if err != nil {
		s.warn("record_pattern", err)
	}
}

// RecordPositionOpen persists an entry fill.
func (s *Store) RecordPositionOpen(ctx context.Context, c *candidate.Candidate) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO position_history (stock_code, entry_price, entry_quantity, entry_time, pattern_type)
		VALUES ($1, $2, $3, $4, $5)
	`, c.StockCode, c.EntryPrice, c.EntryQuantity, c.EntryTime, primaryPatternType(c))
	if err != nil {
		s.warn("record_position_open", err)
	}
}

// RecordPositionClose persists an exit fill with realized P&L.
func (s *Store) RecordPositionClose(ctx context.Context, c *candidate.Candidate) {
	_, err := s.pool.Exec(ctx, `
		UPDATE position_history SET
			exit_price = $2, exit_time = $3, exit_reason = $4, realized_pnl = $5, realized_pnl_pct = $6
		WHERE stock_code = $1 AND exit_time IS NULL
	`, c.StockCode, c.ExitPrice, c.ExitTime, c.ExitReason, c.RealizedPnL, c.RealizedPnLPct)
	if err != nil {
		s.warn("record_position_close", err)
	}
}

// LoadPatternConfig implements cache.ConfigLoader: it reads the
// authoritative per-pattern target/stop/holding-window row set for the
// pattern-config cache's cold-start/refresh path.
func (s *Store) LoadPatternConfig(ctx context.Context) (map[string]cache.PatternConfigRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT pattern_name, target, stop, max_hours, min_minutes FROM pattern_config`)
	if err != nil {
		return nil, fmt.Errorf("persistence: load pattern config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]cache.PatternConfigRow)
	for rows.Next() {
		var name string
		var row cache.PatternConfigRow
		if err := rows.Scan(&name, &row.Target, &row.Stop, &row.MaxHours, &row.MinMinutes); err != nil {
			return nil, fmt.Errorf("persistence: scan pattern config: %w", err)
		}
		out[name] = row
	}
	return out, rows.Err()
}

var _ cache.ConfigLoader = (*Store)(nil)

func primaryPatternType(c *candidate.Candidate) candidate.PatternType {
	if c.PrimaryPattern == nil {
		return ""
	}
	return c.PrimaryPattern.Type
}
