// Package cache provides in-process (and optionally Redis-backed) caching
// for the RAG pipeline: query embeddings (C1), retrieval results (C5), and
// the web-session CSRF token (C8).
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmbeddingCache caches query embedding vectors keyed by normalized query
// hash, sparing C1 a round trip to the embedding backend for a repeated or
// near-duplicate query. An attached RedisEmbeddingCache promotes it to a
// distributed cell shared across processes (see WithRemote).
type EmbeddingCache struct {
	m      *ttlMap[[]float32]
	remote *RedisEmbeddingCache
}

// EmbeddingCacheOption configures an EmbeddingCache at construction.
type EmbeddingCacheOption func(*EmbeddingCache)

// WithRemote attaches a RedisEmbeddingCache: Get falls back to it on a
// local miss (promoting the result locally), and Set writes through to it
// in the background, so several core processes sharing one embedding
// backend don't each pay for the same query.
func WithRemote(r *RedisEmbeddingCache) EmbeddingCacheOption {
	return func(c *EmbeddingCache) { c.remote = r }
}

// DefaultEmbeddingTTL is 15 minutes unless overridden by EMBEDDING_CACHE_TTL
// (seconds).
func DefaultEmbeddingTTL() time.Duration {
	if v := os.Getenv("EMBEDDING_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 15 * time.Minute
}

// NewEmbeddingCache creates an EmbeddingCache with the given TTL and starts
// background cleanup.
func NewEmbeddingCache(ttl time.Duration, opts ...EmbeddingCacheOption) *EmbeddingCache {
	c := &EmbeddingCache{m: newTTLMap[[]float32](ttl)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a cached embedding vector if present and not expired. On a
// local miss with a remote attached, it checks Redis before giving up.
func (c *EmbeddingCache) Get(queryHash string) ([]float32, bool) {
	vec, createdAt, ok := c.m.get(queryHash)
	if ok {
		slog.Info("[EMBED-CACHE] hit", "query_hash", queryHash, "age_ms", time.Since(createdAt).Milliseconds())
		return vec, true
	}

	if c.remote == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	remoteVec, ok, err := c.remote.Get(ctx, queryHash)
	if err != nil {
		slog.Warn("[EMBED-CACHE] redis get failed", "query_hash", queryHash, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.m.set(queryHash, remoteVec)
	slog.Info("[EMBED-CACHE] redis hit", "query_hash", queryHash)
	return remoteVec, true
}

// Set stores an embedding vector in the cache, and — if a remote is
// attached — pushes it to Redis in the background.
func (c *EmbeddingCache) Set(queryHash string, vec []float32) {
	c.m.set(queryHash, vec)
	slog.Info("[EMBED-CACHE] set", "query_hash", queryHash, "vec_dim", len(vec), "ttl_s", int(c.m.ttl.Seconds()))

	if c.remote == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := c.remote.Set(ctx, queryHash, vec); err != nil {
			slog.Warn("[EMBED-CACHE] redis set failed", "query_hash", queryHash, "error", err)
		}
	}()
}

// Len returns the number of entries in the cache.
func (c *EmbeddingCache) Len() int { return c.m.len() }

// Stop halts the background cleanup goroutine.
func (c *EmbeddingCache) Stop() { c.m.stop() }

// EmbeddingQueryHash returns a deterministic cache key for a query string.
// Normalizes by lowercasing and trimming whitespace before hashing.
func EmbeddingQueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", h[:16])
}
