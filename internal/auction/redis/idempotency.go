package redis

import (
	"context"
)

func idempotencyKey(userID, key string) string {
	return idempotencyPrefix + userID + ":" + key
}

// Reserve claims key for userID. It reports false when the key is already held.
func (r *Redis) Reserve(ctx context.Context, userID, key string) (bool, error) {
	return r.Client.SetNX(ctx, idempotencyKey(userID, key), r.now().UTC().Unix(), r.IdempotencyTTL).Result()
}

// Release frees a key whose bid was not accepted.
func (r *Redis) Release(ctx context.Context, userID, key string) error {
	return r.Client.Del(ctx, idempotencyKey(userID, key)).Err()
}
