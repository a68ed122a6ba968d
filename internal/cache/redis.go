package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/maternal-guard-server/internal/domain"
)

const keyPrefix = "maternal-guard:assessment:"

// cachedAssessment is the Redis envelope.
type cachedAssessment struct {
	Data      *domain.RiskAssessment `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// RedisCache shares recent assessments across server replicas. Every call
// goes through a circuit breaker so an unavailable Redis fails fast.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewRedisCache connects to the Redis instance named by cfg.RedisURL.
func NewRedisCache(cfg domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, cfg.TTL, logger), nil
}

// NewRedisCacheFromClient wraps an existing client without pinging it.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	c := &RedisCache{client: client, ttl: ttl, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-assessment-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

func (c *RedisCache) key(id string) string {
	return keyPrefix + id
}

// Get looks up an assessment. Redis errors are returned so callers can
// decide whether to degrade.
func (c *RedisCache) Get(ctx context.Context, id string) (*domain.RiskAssessment, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.client.Get(ctx, c.key(id)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get assessment from Redis: %w", err)
	}
	if result == nil {
		c.misses.Add(1)
		return nil, false, nil
	}

	var cached cachedAssessment
	if err := json.Unmarshal([]byte(result.(string)), &cached); err != nil || cached.Data == nil {
		c.client.Del(ctx, c.key(id))
		c.misses.Add(1)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.client.Del(ctx, c.key(id))
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return cached.Data, true, nil
}

// Set stores an assessment with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, assessment *domain.RiskAssessment) error {
	if assessment == nil || assessment.ID == "" {
		return fmt.Errorf("assessment id is required")
	}

	now := time.Now()
	data, err := json.Marshal(cachedAssessment{
		Data:      assessment,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.key(assessment.ID), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to cache assessment in Redis: %w", err)
	}
	return nil
}

// BreakerState reports the circuit breaker state, for health output.
func (c *RedisCache) BreakerState() string {
	return c.breaker.State().String()
}

// Ping checks Redis through the breaker.
func (c *RedisCache) Ping(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
