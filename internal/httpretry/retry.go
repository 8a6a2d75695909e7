// Package httpretry provides the rate-limit backoff helper used by
// embedclient.VertexClient. Do retries only errors that IsRetryableError
// recognizes as rate limiting (429, RESOURCE_EXHAUSTED, quota, rate
// limit); 5xx errors are not retried by Do. It is adapted from the retry
// helper the teacher wrote specifically for Vertex AI rate limiting.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrExhausted is returned when all retries are exhausted on a retryable
// error.
var ErrExhausted = errors.New("retries exhausted: upstream is rate limited or unavailable")

// Config holds a backoff schedule.
type Config struct {
	Delays  []time.Duration
	Ceiling time.Duration
}

// DefaultConfig is 500ms -> 1000ms -> 2000ms, capped at a 4s ceiling.
var DefaultConfig = Config{
	Delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	Ceiling: 4 * time.Second,
}

// IsRetryableError reports whether err looks like a transient rate-limit or
// overload condition, by message content (covers both SDK errors that embed
// status codes in their message and wrapped REST errors).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// IsRetryableStatus reports whether an HTTP status code warrants a retry.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Do executes fn up to len(cfg.Delays)+1 times, retrying only on errors
// IsRetryableError accepts. Non-retryable errors return immediately.
func Do[T any](ctx context.Context, cfg Config, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !IsRetryableError(err) {
		return result, err
	}

	for i, delay := range cfg.Delays {
		if delay > cfg.Ceiling {
			delay = cfg.Ceiling
		}

		slog.Warn("upstream rate limited, retrying",
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !IsRetryableError(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("retries exhausted", "operation", operation, "attempts", len(cfg.Delays)+1)
	return zero, ErrExhausted
}
