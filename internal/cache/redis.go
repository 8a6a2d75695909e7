package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds every promotion-layer round trip (Get/Set/Clear),
// both the synchronous Get fallback on a local miss and the background
// Set/Clear write-through, so a slow or unreachable Redis never blocks
// the caller beyond this.
const redisOpTimeout = 2 * time.Second

// RedisEmbeddingCache is a distributed drop-in for EmbeddingCache, for
// multi-process desktop-shell deployments (several windows or a helper
// process sharing one embedding cache). In-process EmbeddingCache remains
// the default; this is additive.
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisEmbeddingCache wraps an existing Redis client.
func NewRedisEmbeddingCache(client *redis.Client, ttl time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{client: client, ttl: ttl, prefix: "ragcore:emb:"}
}

// Get returns a cached embedding vector if present.
func (c *RedisEmbeddingCache) Get(ctx context.Context, queryHash string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+queryHash).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache.RedisEmbeddingCache.Get: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("cache.RedisEmbeddingCache.Get: decode: %w", err)
	}
	return vec, true, nil
}

// Set stores an embedding vector with the cache's configured TTL.
func (c *RedisEmbeddingCache) Set(ctx context.Context, queryHash string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("cache.RedisEmbeddingCache.Set: encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+queryHash, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.RedisEmbeddingCache.Set: %w", err)
	}
	return nil
}

// RedisTokenCache is a distributed drop-in for TokenCache, so multiple
// core processes sharing one web-session login don't each harvest their
// own CSRF token.
type RedisTokenCache struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

// NewRedisTokenCache wraps an existing Redis client.
func NewRedisTokenCache(client *redis.Client, ttl time.Duration) *RedisTokenCache {
	return &RedisTokenCache{client: client, ttl: ttl, key: "ragcore:websession:token"}
}

// Get returns the cached token if present (Redis TTL expiry is equivalent
// to TokenCacheEntry.Valid — an expired key simply misses).
func (c *RedisTokenCache) Get(ctx context.Context) (string, bool, error) {
	token, err := c.client.Get(ctx, c.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache.RedisTokenCache.Get: %w", err)
	}
	return token, true, nil
}

// Set stores the token with the cache's configured TTL.
func (c *RedisTokenCache) Set(ctx context.Context, token string) error {
	if err := c.client.Set(ctx, c.key, token, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.RedisTokenCache.Set: %w", err)
	}
	return nil
}

// Clear removes the cached token. Called on any auth failure.
func (c *RedisTokenCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("cache.RedisTokenCache.Clear: %w", err)
	}
	return nil
}
