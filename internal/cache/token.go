package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TokenCache is the single owned cell backing the web-session client's CSRF
// token (spec.md §9 "Scoped token cache"). It exposes three operations —
// Get, Set and Clear — and is intended to be touched from exactly one
// task (websession.Client.Send). An attached RedisTokenCache promotes
// it to a distributed cell shared across processes (see WithTokenRemote).
type TokenCache struct {
	mu          sync.RWMutex
	token       string
	extractedAt time.Time
	ttl         time.Duration
	remote      *RedisTokenCache
}

// TokenCacheOption configures a TokenCache at construction.
type TokenCacheOption func(*TokenCache)

// WithTokenRemote attaches a RedisTokenCache: Get falls back to it on a
// local miss (promoting the result locally), and Set/Clear write through to
// it in the background so other processes sharing the same web session
// converge on the same token without each harvesting their own.
func WithTokenRemote(r *RedisTokenCache) TokenCacheOption {
	return func(c *TokenCache) { c.remote = r }
}

// NewTokenCache creates an empty TokenCache with the given TTL.
func NewTokenCache(ttl time.Duration, opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached token if it is still within TTL of now. On a local
// miss with a remote attached, it checks Redis before giving up.
func (c *TokenCache) Get(now time.Time) (string, bool) {
	c.mu.RLock()
	token, extractedAt := c.token, c.extractedAt
	c.mu.RUnlock()

	if token != "" && now.Sub(extractedAt) < c.ttl {
		return token, true
	}

	if c.remote == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	remoteToken, ok, err := c.remote.Get(ctx)
	if err != nil {
		slog.Warn("token cache redis get failed", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	c.Set(remoteToken, now)
	return remoteToken, true
}

// Set stores a freshly-extracted token, and — if a remote is attached —
// pushes it to Redis in the background so sibling processes pick it up.
func (c *TokenCache) Set(token string, extractedAt time.Time) {
	c.mu.Lock()
	c.token = token
	c.extractedAt = extractedAt
	c.mu.Unlock()

	if c.remote == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := c.remote.Set(ctx, token); err != nil {
			slog.Warn("token cache redis set failed", "error", err)
		}
	}()
}

// Clear invalidates the cached token. Called on any auth failure — there is
// no TTL sweeper, clearing is the only invalidation path besides natural
// expiry. Also clears the remote, if attached.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.token = ""
	c.extractedAt = time.Time{}
	c.mu.Unlock()

	if c.remote == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := c.remote.Clear(ctx); err != nil {
			slog.Warn("token cache redis clear failed", "error", err)
		}
	}()
}
