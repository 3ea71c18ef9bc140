package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Listing pages are stored under the current generation. Invalidate bumps the
// generation, which orphans every page at once; orphans age out by TTL.

func pageKey(gen int64, key string) string {
	return fmt.Sprintf("%s%d:%s", cachePrefix, gen, key)
}

func (r *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := r.Client.Get(ctx, cacheGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get looks key up in the current generation and returns that generation.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := r.Client.Get(ctx, pageKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}
	return raw, gen, true, nil
}

// Set stores value under gen. If the generation has moved on since gen was
// read, the page lands in an orphaned namespace and is never served.
func (r *Redis) Set(ctx context.Context, gen int64, key string, value []byte) error {
	return r.Client.Set(ctx, pageKey(gen, key), value, r.CacheTTL).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	return r.Client.Incr(ctx, cacheGenKey).Err()
}
