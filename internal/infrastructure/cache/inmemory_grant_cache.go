package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"go.uber.org/zap"
)

const (
	defaultGrantTTL        = 5 * time.Minute
	defaultCleanupInterval = 30 * time.Second
)

// InMemoryGrantCache caches resolved grants per (plan, privilege name)
// in process memory. Suitable for single-instance deployments; in a
// multi-instance setup use the Redis backend so catalog invalidations
// reach every node.
type InMemoryGrantCache struct {
	entries sync.Map // map[string]*grantEntry
	ttl     time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type grantEntry struct {
	grant     *privilege.Grant
	expiresAt time.Time
}

func (e *grantEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryGrantCacheOption is a functional option for configuring the cache
type InMemoryGrantCacheOption func(*InMemoryGrantCache)

// WithInMemoryTTL sets how long cached grants stay valid
func WithInMemoryTTL(ttl time.Duration) InMemoryGrantCacheOption {
	return func(c *InMemoryGrantCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryGrantCacheOption {
	return func(c *InMemoryGrantCache) {
		c.logger = logger
	}
}

// NewInMemoryGrantCache creates a new in-memory grant cache
func NewInMemoryGrantCache(opts ...InMemoryGrantCacheOption) *InMemoryGrantCache {
	cache := &InMemoryGrantCache{
		ttl:    defaultGrantTTL,
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	go cache.cleanupExpired()

	return cache
}

// grantCacheKey generates the cache key for a (plan, privilege name) pair
func grantCacheKey(planID, privilegeName string) string {
	return planID + "/" + privilegeName
}

// Get retrieves a cached grant. Expired entries count as misses.
func (c *InMemoryGrantCache) Get(ctx context.Context, planID, privilegeName string) (*privilege.Grant, bool) {
	key := grantCacheKey(planID, privilegeName)

	if value, ok := c.entries.Load(key); ok {
		entry := value.(*grantEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			return entry.grant, true
		}
		c.entries.Delete(key)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set caches a grant under its own plan and privilege name
func (c *InMemoryGrantCache) Set(ctx context.Context, grant *privilege.Grant) {
	if grant == nil {
		return
	}

	c.entries.Store(grantCacheKey(grant.PlanID, grant.PrivilegeName), &grantEntry{
		grant:     grant,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// InvalidatePlan drops every cached grant for a plan
func (c *InMemoryGrantCache) InvalidatePlan(ctx context.Context, planID string) {
	prefix := planID + "/"
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
		}
		return true
	})
	c.logger.Debug("invalidated cached grants for plan", zap.String("plan_id", planID))
}

// Stats returns hit/miss counters for monitoring
func (c *InMemoryGrantCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Close stops the background cleanup goroutine
func (c *InMemoryGrantCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// cleanupExpired periodically evicts expired entries so plans that stop
// being queried do not pin memory until process restart
func (c *InMemoryGrantCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.entries.Range(func(key, value any) bool {
				if value.(*grantEntry).isExpired() {
					c.entries.Delete(key)
				}
				return true
			})
		}
	}
}
