package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot stores the value under one redis key. The key expires together
// with the value's expiresAt, so redis evicts dead sessions on its own.
type RedisSlot struct {
	client redis.Cmdable
	key    string
}

// Compile-time check to ensure RedisSlot implements Slot
var _ Slot = (*RedisSlot)(nil)

// NewRedisSlot creates a RedisSlot for key on the given client.
func NewRedisSlot(client redis.Cmdable, key string) (*RedisSlot, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	return &RedisSlot{
		client: client,
		key:    key,
	}, nil
}

// Get returns the value stored under the key.
func (r *RedisSlot) Get(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Set stores the value with a TTL ending at expiresAt. A zero expiresAt keeps
// the key until it is deleted; one already in the past removes it.
func (r *RedisSlot) Set(ctx context.Context, data []byte, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return r.Delete(ctx)
		}
	}

	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Delete removes the key.
func (r *RedisSlot) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
