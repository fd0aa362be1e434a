package cache

import (
	"context"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/patterns"
)

const (
	patternConfigKey   = "pattern:config:all"
	patternConfigTTL   = 5 * time.Minute
)

// PatternConfigRow is the persisted pattern-config shape: a JSON object
// keyed by lowercase pattern name with {target, stop, max_hours,
// min_minutes}.
type PatternConfigRow struct {
	Target     float64 `json:"target"`
	Stop       float64 `json:"stop"`
	MaxHours   float64 `json:"max_hours"`
	MinMinutes float64 `json:"min_minutes"`
}

// ConfigLoader fetches the authoritative pattern-config rows (normally
// backed by Postgres) when the cache is cold or expired.
type ConfigLoader interface {
	LoadPatternConfig(ctx context.Context) (map[string]PatternConfigRow, error)
}

// PatternConfigCache is a 5-minute lazily-refreshed patterns.RatioTable
// backed by Redis, falling back to patterns.DefaultRatioTable() whenever
// Redis and the loader both come up empty.
type PatternConfigCache struct {
	svc    *Service
	loader ConfigLoader

	mu         sync.RWMutex
	table      map[candidate.PatternType]patterns.PatternRatios
	fetchedAt  time.Time
}

// NewPatternConfigCache builds a cache that reads through svc (Redis) and
// falls back to loader on a miss.
func NewPatternConfigCache(svc *Service, loader ConfigLoader) *PatternConfigCache {
	return &PatternConfigCache{svc: svc, loader: loader}
}

// For implements patterns.RatioTable, refreshing the whole table if it
// has never been loaded or is older than 5 minutes.
func (c *PatternConfigCache) For(t candidate.PatternType) patterns.PatternRatios {
	c.mu.RLock()
	stale := time.Since(c.fetchedAt) > patternConfigTTL
	table := c.table
	c.mu.RUnlock()

	if stale || table == nil {
		c.refresh()
		c.mu.RLock()
		table = c.table
		c.mu.RUnlock()
	}

	if r, ok := table[t]; ok {
		return r
	}
	return patterns.DefaultRatioTable().For(t)
}

func (c *PatternConfigCache) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rows := make(map[string]PatternConfigRow)
	if c.svc != nil {
		if err := c.svc.GetJSON(ctx, patternConfigKey, &rows); err == nil {
			c.store(rows)
			return
		}
	}

	if c.loader != nil {
		if loaded, err := c.loader.LoadPatternConfig(ctx); err == nil && len(loaded) > 0 {
			if c.svc != nil {
				_ = c.svc.SetJSON(ctx, patternConfigKey, loaded, patternConfigTTL)
			}
			c.store(loaded)
			return
		}
	}

	// Nothing to refresh from; keep whatever we had (possibly nil, which
	// falls back to DefaultRatioTable per symbol lookup) but stamp the
	// fetch time so we don't hammer a down dependency every call.
	c.mu.Lock()
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func (c *PatternConfigCache) store(rows map[string]PatternConfigRow) {
	table := make(map[candidate.PatternType]patterns.PatternRatios, len(rows))
	for name, row := range rows {
		table[patternTypeFromConfigKey(name)] = patterns.PatternRatios{
			Target:          row.Target,
			Stop:            row.Stop,
			MaxHoldingHours: row.MaxHours,
			MinHoldMinutes:  row.MinMinutes,
		}
	}
	c.mu.Lock()
	c.table = table
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func patternTypeFromConfigKey(lower string) candidate.PatternType {
	switch lower {
	case "hammer":
		return candidate.Hammer
	case "inverted_hammer":
		return candidate.InvertedHammer
	case "bullish_engulfing":
		return candidate.BullishEngulfing
	case "piercing_line":
		return candidate.PiercingLine
	case "morning_star":
		return candidate.MorningStar
	case "shooting_star":
		return candidate.ShootingStar
	case "bearish_engulfing":
		return candidate.BearishEngulfing
	case "dark_cloud_cover":
		return candidate.DarkCloudCover
	case "evening_star":
		return candidate.EveningStar
	default:
		return candidate.PatternType(lower)
	}
}

var _ patterns.RatioTable = (*PatternConfigCache)(nil)
