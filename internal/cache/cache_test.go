package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/logging"
)

func sampleAssessment(id string) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:            id,
		Level:         domain.RiskMid,
		ModelLevel:    domain.RiskHigh,
		Confidence:    0.79,
		Probabilities: domain.ClassProbabilities{0.02, 0.19, 0.79},
		Downgraded:    true,
		FeatureImportance: []domain.FeatureWeight{
			{Feature: domain.FeatureBloodSugar, Weight: 0.33},
			{Feature: domain.FeatureSystolicBP, Weight: 0.19},
		},
		ModelVersion: "1.0.0",
		AssessedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewMemoryCache_Invalid(t *testing.T) {
	_, err := NewMemoryCache(0, time.Minute)
	assert.Error(t, err)

	_, err = NewMemoryCache(10, 0)
	assert.Error(t, err)
}

func TestMemoryCache_SetGet(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	a := sampleAssessment("a-1")
	require.NoError(t, c.Set(ctx, a))

	got, ok := c.Get(ctx, "a-1")
	require.True(t, ok)
	assert.Equal(t, a, got)

	got.FeatureImportance[0].Weight = 0
	again, _ := c.Get(ctx, "a-1")
	assert.InDelta(t, 0.33, again.FeatureImportance[0].Weight, 1e-9, "callers get copies")

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, "memory", stats.Backend)
}

func TestMemoryCache_SetRequiresID(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	assert.Error(t, c.Set(context.Background(), nil))
	assert.Error(t, c.Set(context.Background(), &domain.RiskAssessment{}))
}

func TestMemoryCache_Eviction(t *testing.T) {
	c, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, sampleAssessment(fmt.Sprintf("a-%d", i))))
	}

	_, ok := c.Get(ctx, "a-0")
	assert.False(t, ok, "oldest entry is evicted")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Items)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, err := NewMemoryCache(10, 50*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleAssessment("a-exp")))
	time.Sleep(120 * time.Millisecond)

	_, ok := c.Get(ctx, "a-exp")
	assert.False(t, ok)
}

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	rc := NewRedisCacheFromClient(client, time.Minute, logging.Discard())
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestRedisCache_BreakerOpensOnFailures(t *testing.T) {
	rc := unreachableRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := rc.Get(ctx, "a-1")
		require.Error(t, err)
	}

	assert.Equal(t, "open", rc.BreakerState())
	assert.Error(t, rc.Set(ctx, sampleAssessment("a-1")))
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(domain.CacheConfig{RedisURL: "not a url", TTL: time.Minute}, logging.Discard())
	assert.Error(t, err)
}

func TestTieredCache_DegradesToMemory(t *testing.T) {
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	tiered := NewTieredCache(mem, unreachableRedis(t), logging.Discard())
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, sampleAssessment("a-1")), "Redis failure is not surfaced")

	got, ok := tiered.Get(ctx, "a-1")
	require.True(t, ok)
	assert.Equal(t, "a-1", got.ID)

	_, ok = tiered.Get(ctx, "missing")
	assert.False(t, ok)

	stats := tiered.Stats()
	assert.Equal(t, "memory+redis", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestTieredCache_MemoryOnly(t *testing.T) {
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	tiered := NewTieredCache(mem, nil, nil)
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, sampleAssessment("a-2")))
	_, ok := tiered.Get(ctx, "a-2")
	assert.True(t, ok)
	assert.Equal(t, "disabled", tiered.RedisState())
	assert.Equal(t, "memory", tiered.Stats().Backend)
	assert.NoError(t, tiered.Close())
}

func TestTieredCache_Health(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	assert.NoError(t, NewTieredCache(mem, nil, nil).Health(ctx))

	tiered := NewTieredCache(mem, unreachableRedis(t), logging.Discard())
	err = tiered.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")

	for i := 0; i < 3; i++ {
		_ = tiered.Health(ctx)
	}
	assert.Equal(t, "open", tiered.RedisState())
	err = tiered.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker open")
}

// TestTieredCache_Redis runs against a live Redis when TEST_REDIS_URL is set.
func TestTieredCache_Redis(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	rc, err := NewRedisCache(domain.CacheConfig{RedisURL: redisURL, TTL: time.Minute}, logging.Discard())
	require.NoError(t, err)
	defer rc.Close()

	ctx := context.Background()
	a := sampleAssessment(fmt.Sprintf("it-%d", time.Now().UnixNano()))
	require.NoError(t, rc.Set(ctx, a))

	// A fresh memory tier must be filled from Redis.
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	tiered := NewTieredCache(mem, rc, logging.Discard())

	got, ok := tiered.Get(ctx, a.ID)
	require.True(t, ok)
	assert.Equal(t, a.Level, got.Level)
	assert.Equal(t, 1, mem.Stats().Items)
}
