package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const grantKeyPrefix = "privilege:grants:"

// RedisGrantCache caches resolved grants in Redis, one hash per plan
// keyed by privilege name. Keeping a plan's grants in a single hash
// makes InvalidatePlan one DEL, so a catalog change cannot leave stale
// siblings behind.
//
// Redis failures degrade to cache misses: the resolver falls through to
// the database and privilege checks keep working.
type RedisGrantCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGrantCache creates a grant cache backed by an existing Redis client
func NewRedisGrantCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisGrantCache {
	if ttl <= 0 {
		ttl = defaultGrantTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGrantCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func planKey(planID string) string {
	return grantKeyPrefix + planID
}

// Get retrieves a cached grant for a plan and privilege name
func (c *RedisGrantCache) Get(ctx context.Context, planID, privilegeName string) (*privilege.Grant, bool) {
	payload, err := c.client.HGet(ctx, planKey(planID), privilegeName).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("grant cache read failed, treating as miss",
				zap.String("plan_id", planID),
				zap.String("privilege", privilegeName),
				zap.Error(err))
		}
		return nil, false
	}

	var grant privilege.Grant
	if err := json.Unmarshal([]byte(payload), &grant); err != nil {
		c.logger.Warn("grant cache entry is corrupt, dropping it",
			zap.String("plan_id", planID),
			zap.String("privilege", privilegeName),
			zap.Error(err))
		c.client.HDel(ctx, planKey(planID), privilegeName)
		return nil, false
	}
	return &grant, true
}

// Set caches a grant under its own plan and privilege name. The TTL is
// refreshed for the whole plan hash on every write.
func (c *RedisGrantCache) Set(ctx context.Context, grant *privilege.Grant) {
	if grant == nil {
		return
	}

	payload, err := json.Marshal(grant)
	if err != nil {
		c.logger.Warn("failed to encode grant for cache", zap.Error(err))
		return
	}

	key := planKey(grant.PlanID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, grant.PrivilegeName, payload)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("grant cache write failed",
			zap.String("plan_id", grant.PlanID),
			zap.String("privilege", grant.PrivilegeName),
			zap.Error(err))
	}
}

// InvalidatePlan drops every cached grant for a plan
func (c *RedisGrantCache) InvalidatePlan(ctx context.Context, planID string) {
	if err := c.client.Del(ctx, planKey(planID)).Err(); err != nil {
		c.logger.Warn("grant cache invalidation failed",
			zap.String("plan_id", planID),
			zap.Error(err))
	}
}
