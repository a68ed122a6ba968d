package cache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
)

// TieredCache reads memory first, then Redis. A Redis failure degrades to
// memory-only and is logged, never returned.
type TieredCache struct {
	memory *MemoryCache
	redis  *RedisCache
	logger *logrus.Logger
}

var _ domain.AssessmentCache = (*TieredCache)(nil)

// NewTieredCache combines memory and an optional Redis tier.
func NewTieredCache(memory *MemoryCache, redis *RedisCache, logger *logrus.Logger) *TieredCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &TieredCache{memory: memory, redis: redis, logger: logger}
}

// Get returns the assessment from the first tier that has it. A Redis hit
// is copied into memory.
func (t *TieredCache) Get(ctx context.Context, id string) (*domain.RiskAssessment, bool) {
	if a, ok := t.memory.Get(ctx, id); ok {
		return a, true
	}
	if t.redis == nil {
		return nil, false
	}

	a, ok, err := t.redis.Get(ctx, id)
	if err != nil {
		t.logger.WithError(err).WithField("assessment_id", id).Warn("Redis tier unavailable, using memory only")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	_ = t.memory.Set(ctx, a)
	return a, true
}

// Set writes to memory and, best effort, to Redis.
func (t *TieredCache) Set(ctx context.Context, assessment *domain.RiskAssessment) error {
	if err := t.memory.Set(ctx, assessment); err != nil {
		return err
	}
	if t.redis != nil {
		if err := t.redis.Set(ctx, assessment); err != nil {
			t.logger.WithError(err).WithField("assessment_id", assessment.ID).Warn("Failed to write assessment to Redis tier")
		}
	}
	return nil
}

// Stats reports combined counters. With Redis configured, a memory miss
// served by Redis counts as a hit.
func (t *TieredCache) Stats() domain.CacheStats {
	stats := t.memory.Stats()
	if t.redis != nil {
		redisHits := t.redis.hits.Load()
		stats.Hits += redisHits
		stats.Misses -= redisHits
		stats.Backend = "memory+redis"
	}
	return stats
}

// RedisState returns the Redis breaker state, or "disabled".
func (t *TieredCache) RedisState() string {
	if t.redis == nil {
		return "disabled"
	}
	return t.redis.BreakerState()
}

// Health pings Redis through its breaker. A memory-only cache is always
// healthy.
func (t *TieredCache) Health(ctx context.Context) error {
	if t.redis == nil {
		return nil
	}
	if err := t.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis (breaker %s): %w", t.redis.BreakerState(), err)
	}
	return nil
}

// Close releases the Redis client when present.
func (t *TieredCache) Close() error {
	if t.redis != nil {
		return t.redis.Close()
	}
	return nil
}
