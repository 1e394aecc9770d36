package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a booked transfer stays in the result cache.
const DefaultCacheTTL = 24 * time.Hour

// ResultCache remembers booked transfers by idempotency key so repeated
// submissions can be answered without opening a transaction.
//
// The cache is an optimization only: the idempotency check inside the
// transaction remains authoritative.
type ResultCache interface {
	Get(ctx context.Context, key uuid.UUID) (*Transfer, bool, error)
	Put(ctx context.Context, t *Transfer) error
}

// RedisResultCache stores transfers as JSON documents in Redis.
//
// Thread-Safety: Safe for concurrent use (redis.Client is thread-safe).
type RedisResultCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisResultCache wraps client. A non-positive ttl selects DefaultCacheTTL.
// Panics if client is nil.
func NewRedisResultCache(client redis.UniversalClient, ttl time.Duration) *RedisResultCache {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisResultCache{rdb: client, prefix: "txretry:transfer:", ttl: ttl}
}

// NewRedisResultCacheFromURL connects to the Redis server at url
// (redis://[user:password@]host:port/db).
func NewRedisResultCacheFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return NewRedisResultCache(client, ttl), nil
}

func (c *RedisResultCache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

// Get returns the cached transfer for key. A miss is reported as (nil, false, nil).
func (c *RedisResultCache) Get(ctx context.Context, key uuid.UUID) (*Transfer, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached transfer: %w", err)
	}

	var t Transfer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, fmt.Errorf("decode cached transfer: %w", err)
	}
	return &t, true, nil
}

// Put caches t under its idempotency key.
func (c *RedisResultCache) Put(ctx context.Context, t *Transfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(t.IdempotencyKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache transfer: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisResultCache) Close() error {
	return c.rdb.Close()
}
