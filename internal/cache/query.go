package cache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// RankedContext mirrors retrieval.RankedContext without importing the
// retrieval package, matching the teacher's "mirror the result type to
// avoid an import cycle" idiom (see service.VectorSearchResult).
type RankedContext struct {
	Content string
	Source  string
	Score   float64
}

// QueryCache caches C5's ranked results by (collection, query-set,
// minRelevanceScore), sparing a repeated turn the full multi-query
// embed-and-search fan-out.
type QueryCache struct {
	m *ttlMap[[]RankedContext]
}

// DefaultQueryCacheTTL is 5 minutes unless overridden by QUERY_CACHE_TTL
// (seconds) — shorter than DefaultEmbeddingTTL since retrieval results go
// stale faster than the query's embedding does as a knowledge base grows.
func DefaultQueryCacheTTL() time.Duration {
	if v := os.Getenv("QUERY_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Minute
}

// NewQueryCache creates a QueryCache with the given TTL and starts
// background cleanup.
func NewQueryCache(ttl time.Duration) *QueryCache {
	return &QueryCache{m: newTTLMap[[]RankedContext](ttl)}
}

// Get returns a cached result set if present and not expired.
func (c *QueryCache) Get(collection string, queries []string, minScore float64) ([]RankedContext, bool) {
	key := queryCacheKey(collection, queries, minScore)
	result, createdAt, ok := c.m.get(key)
	if !ok {
		return nil, false
	}
	slog.Info("[QUERY-CACHE] hit", "collection", collection, "age_ms", time.Since(createdAt).Milliseconds())
	return result, true
}

// Set stores a result set in the cache.
func (c *QueryCache) Set(collection string, queries []string, minScore float64, result []RankedContext) {
	key := queryCacheKey(collection, queries, minScore)
	c.m.set(key, result)
	slog.Info("[QUERY-CACHE] set", "collection", collection, "ttl_s", int(c.m.ttl.Seconds()), "total_entries", c.m.len())
}

// InvalidateCollection removes all cached entries for a collection. Call
// this when the collection's contents change (upsert/delete).
func (c *QueryCache) InvalidateCollection(collection string) {
	removed := c.m.deletePrefix("qc:" + collection + ":")
	if removed > 0 {
		slog.Info("[QUERY-CACHE] invalidated collection", "collection", collection, "entries_removed", removed)
	}
}

// Len returns the number of entries in the cache.
func (c *QueryCache) Len() int { return c.m.len() }

// Stop halts the background cleanup goroutine.
func (c *QueryCache) Stop() { c.m.stop() }

// queryCacheKey builds a deterministic key: "qc:{collection}:{minScore}:{sha256(queries)}"
func queryCacheKey(collection string, queries []string, minScore float64) string {
	h := sha256.Sum256([]byte(strings.Join(queries, "\x1f")))
	return fmt.Sprintf("qc:%s:%.2f:%x", collection, minScore, h[:8])
}
