package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis, for deployments where repeat
// scans should hit the cache across processes. Entries are stored as JSON
// under CacheKeyPrefix and expire via Redis key TTL, so staleness is
// enforced server-side.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed verification cache. A non-positive
// ttl falls back to DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(barcode string) string {
	return CacheKeyPrefix + ":" + barcode
}

// Get returns the cached result for barcode if the key has not expired.
func (c *RedisCache) Get(ctx context.Context, barcode string) (*Result, error) {
	payload, err := c.client.Get(ctx, cacheKey(barcode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", barcode, err)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		// A corrupt payload behaves as a miss; the next Put overwrites it.
		return nil, ErrCacheMiss
	}
	return &result, nil
}

// Put stores the result for barcode with the cache TTL as key expiry.
func (c *RedisCache) Put(ctx context.Context, barcode string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for %s: %w", barcode, err)
	}
	if err := c.client.Set(ctx, cacheKey(barcode), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", barcode, err)
	}
	return nil
}

// Clear drops every cached verification under the cache key prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, CacheKeyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}
