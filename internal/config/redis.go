package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the record is stored under.
const DefaultRedisKey = "switch-node:config"

// redisClient is the part of *redis.Client the medium uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisMedium stores the record as a single Redis string value.
type RedisMedium struct {
	client redisClient
	key    string
}

// NewRedisMedium connects lazily to the Redis server at addr.
func NewRedisMedium(addr string, db int, key string) *RedisMedium {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisMedium{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		key: key,
	}
}

// Ping checks the server is reachable.
func (r *RedisMedium) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Read implements Medium.
func (r *RedisMedium) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Write implements Medium.
func (r *RedisMedium) Write(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisMedium) Close() error {
	return r.client.Close()
}
