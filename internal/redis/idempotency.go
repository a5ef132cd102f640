package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrKeyExists   = errors.New("idempotency key already exists")
	ErrKeyNotFound = errors.New("idempotency key not found")
)

// CheckAndSetIdempotency guards replayed purchase and deposit requests.
// First caller for a key gets (nil, nil) and proceeds; a replay while the
// operation is in flight gets ErrKeyExists; a replay after completion gets
// the cached response.
func (c *Client) CheckAndSetIdempotency(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	prefixedKey := c.prefixKey("idempotency:" + key)

	set, err := c.rdb.SetNX(ctx, prefixedKey, "pending", ttl).Result()
	if err != nil {
		return nil, err
	}

	if set {
		return nil, nil
	}

	val, err := c.rdb.Get(ctx, prefixedKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	if val == "pending" {
		return nil, ErrKeyExists
	}

	return []byte(val), nil
}

// MarkIdempotencyComplete caches the operation's response under the key.
func (c *Client) MarkIdempotencyComplete(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	prefixedKey := c.prefixKey("idempotency:" + key)

	return c.rdb.Set(ctx, prefixedKey, response, ttl).Err()
}

// MarkIdempotencyFailed removes the key so the client may retry.
func (c *Client) MarkIdempotencyFailed(ctx context.Context, key string) error {
	prefixedKey := c.prefixKey("idempotency:" + key)

	return c.rdb.Del(ctx, prefixedKey).Err()
}
