package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache using Redis.
type IdempotencyCache struct {
	client *goredis.Client
	keys   Keyspace
}

func NewIdempotencyCache(client *goredis.Client, keys Keyspace) *IdempotencyCache {
	return &IdempotencyCache{client: client, keys: keys}
}

// Get returns nil, nil if the key does not exist.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.keys.Key("idempotency", key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// SetNX claims key for ttl. It reports false when another request got there
// first.
func (c *IdempotencyCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.keys.Key("idempotency", key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis idempotency setnx: %w", err)
	}
	return ok, nil
}

// Set overwrites key, keeping ttl.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keys.Key("idempotency", key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// Delete releases a claimed key.
func (c *IdempotencyCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keys.Key("idempotency", key)).Err(); err != nil {
		return fmt.Errorf("redis idempotency delete: %w", err)
	}
	return nil
}
