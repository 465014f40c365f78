package cache

import (
	"fmt"

	apppriv "github.com/careloop/backend/internal/application/privilege"
	"github.com/careloop/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewGrantCache builds the grant cache selected by configuration.
// The redis backend requires a connected client; the memory backend
// ignores it.
func NewGrantCache(cfg config.CacheConfig, client *redis.Client, logger *zap.Logger) (apppriv.GrantCache, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewInMemoryGrantCache(
			WithInMemoryTTL(cfg.TTL),
			WithInMemoryLogger(logger),
		), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("cache backend 'redis' requires a redis connection")
		}
		return NewRedisGrantCache(client, cfg.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
