// Package cache provides Redis cache access layer.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default TTLs.
const (
	// DefaultTTL is the TTL for cached records.
	DefaultTTL = 1 * time.Hour

	// DefaultNegativeTTL is the TTL for negative cache entries.
	DefaultNegativeTTL = 1 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache provides Redis cache access methods.
type Cache struct {
	client      *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the TTL of cached records.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNegativeTTL sets the TTL of negative cache entries.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.negativeTTL = ttl
		}
	}
}

// New creates a new Cache with a Redis client.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Connection pool settings
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client:      client,
		ttl:         DefaultTTL,
		negativeTTL: DefaultNegativeTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client.
// Use sparingly - prefer adding methods to Cache.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// getHash loads a hash into dst. Returns ErrCacheMiss if the key is absent.
func (c *Cache) getHash(ctx context.Context, key string, dst any) error {
	cmd := c.client.HGetAll(ctx, key)
	result, err := cmd.Result()
	if err != nil {
		return fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return ErrCacheMiss
	}
	if err := cmd.Scan(dst); err != nil {
		return fmt.Errorf("failed to decode cached hash: %w", err)
	}
	return nil
}

// storeHashScript replaces the hash at KEYS[1] unless the cached copy has a
// newer updated_at. With ARGV[3] set it also yields to the negative entry
// at KEYS[2], which deletes leave behind.
//
// ARGV: ttl in ms, updated_at in unix micros, backfill flag, field/value pairs.
var storeHashScript = redis.NewScript(`
if ARGV[3] == '1' and redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
local cached = redis.call('HGET', KEYS[1], 'updated_at')
if cached and tonumber(cached) > tonumber(ARGV[2]) then
	return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// storeHash writes fields under key with the record TTL. It reports whether
// the write won against the version already cached.
func (c *Cache) storeHash(ctx context.Context, key, updatedAt string, backfill bool, fields []any) (bool, error) {
	flag := "0"
	if backfill {
		flag = "1"
	}
	args := make([]any, 0, len(fields)+3)
	args = append(args, c.ttl.Milliseconds(), updatedAt, flag)
	args = append(args, fields...)

	stored, err := storeHashScript.Run(ctx, c.client, []string{key, negativeKey(key)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return stored == 1, nil
}

// deleteKeys removes the cached records and their negative entries.
func (c *Cache) deleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	all := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		all = append(all, k, negativeKey(k))
	}

	if err := c.client.Del(ctx, all...).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// tombstone removes the cached records and leaves negative entries in their
// place, so a reader still holding a pre-delete row cannot backfill it.
func (c *Cache) tombstone(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
		pipe.SetEx(ctx, negativeKey(k), "", c.negativeTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to tombstone cache keys: %w", err)
	}
	return nil
}

func (c *Cache) isNegative(ctx context.Context, key string) (bool, error) {
	exists, err := c.client.Exists(ctx, negativeKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

func (c *Cache) setNegative(ctx context.Context, key string) error {
	if err := c.client.SetEx(ctx, negativeKey(key), "", c.negativeTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
