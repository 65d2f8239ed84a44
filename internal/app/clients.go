package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/trackchat-backend/internal/clients/redis"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type Clients struct {
	Redis         *goredis.Client
	PresenceCache services.HeartbeatCache
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...", "presence_cache", cfg.PresenceCache)
	if cfg.PresenceCache != PresenceCacheRedis {
		return Clients{PresenceCache: services.NewMemoryHeartbeatCache()}, nil
	}
	rdb, err := redis.Dial(ctx, log, cfg.RedisAddr)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis presence cache: %w", err)
	}
	return Clients{
		Redis:         rdb,
		PresenceCache: redis.NewPresenceCache(log, rdb, cfg.RedisPresencePrefix),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
