// Package redis holds the auction service's Redis-backed helpers: lifecycle
// timers driven by key expiry, the bid idempotency guard and the listing cache.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-auction/internal/config"
	"ms-auction/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	startTimerPrefix  = "auction_start:"
	endTimerPrefix    = "auction_end:"
	idempotencyPrefix = "bid_idem:"
	cacheGenKey       = "auctions:list:gen"
	cachePrefix       = "auctions:list:"
)

type Redis struct {
	Client *redis.Client
	Logger *logger.Logger

	IdempotencyTTL time.Duration
	CacheTTL       time.Duration

	now func() time.Time
}

func NewRedis(client *redis.Client, cfg config.RedisConfig, log *logger.Logger) *Redis {
	r := &Redis{
		Client:         client,
		Logger:         log,
		IdempotencyTTL: cfg.IdempotencyTTL,
		CacheTTL:       cfg.ListingCacheTTL,
		now:            time.Now,
	}
	if r.IdempotencyTTL <= 0 {
		r.IdempotencyTTL = 10 * time.Minute
	}
	if r.CacheTTL <= 0 {
		r.CacheTTL = 5 * time.Second
	}
	return r
}

// EnableExpiryEvents turns on expired-key notifications. Managed Redis
// offerings often refuse CONFIG SET; callers log and carry on, the sweeper
// still drives transitions.
func (r *Redis) EnableExpiryEvents(ctx context.Context) error {
	if err := r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		return fmt.Errorf("enable keyspace notifications: %w", err)
	}
	val, err := r.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return nil
	}
	if len(val) < 2 {
		return nil
	}
	if s, ok := val[1].(string); !ok || !strings.Contains(s, "x") || !strings.Contains(s, "E") {
		r.Logger.Warn("REDIS", fmt.Sprintf("Keyspace notifications not configured for expiry events: %v", val[1]))
	}
	return nil
}
