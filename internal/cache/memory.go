// Package cache keeps recent risk assessments by ID so that clinician
// feedback can be tied to the label the service actually produced.
//
// Only assessment outputs are cached. Vitals never enter the cache.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maternal-guard-server/internal/domain"
)

// MemoryCache is an in-process expirable LRU of assessments.
type MemoryCache struct {
	lru       *expirable.LRU[string, domain.RiskAssessment]
	ttl       time.Duration
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

var _ domain.AssessmentCache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache holding at most maxItems assessments, each
// for ttl.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache max items must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	c := &MemoryCache{ttl: ttl}
	c.lru = expirable.NewLRU[string, domain.RiskAssessment](maxItems, func(string, domain.RiskAssessment) {
		c.evictions.Add(1)
	}, ttl)
	return c, nil
}

// Get returns a copy of the cached assessment.
func (c *MemoryCache) Get(_ context.Context, id string) (*domain.RiskAssessment, bool) {
	a, ok := c.lru.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return cloneAssessment(&a), true
}

// Set stores a copy of assessment under its ID.
func (c *MemoryCache) Set(_ context.Context, assessment *domain.RiskAssessment) error {
	if assessment == nil || assessment.ID == "" {
		return fmt.Errorf("assessment id is required")
	}
	c.lru.Add(assessment.ID, *cloneAssessment(assessment))
	return nil
}

// Stats returns hit/miss counters.
func (c *MemoryCache) Stats() domain.CacheStats {
	return domain.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Items:     c.lru.Len(),
		Evictions: c.evictions.Load(),
		Backend:   "memory",
	}
}

// TTL returns the configured entry lifetime.
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}

func cloneAssessment(a *domain.RiskAssessment) *domain.RiskAssessment {
	out := *a
	out.FeatureImportance = append([]domain.FeatureWeight(nil), a.FeatureImportance...)
	return &out
}
