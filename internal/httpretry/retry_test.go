package httpretry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoReturnsImmediatelyOnSuccess(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultConfig, "test", func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || result != 42 || calls != 1 {
		t.Fatalf("unexpected result=%d err=%v calls=%d", result, err, calls)
	}
}

func TestDoDoesNotRetryNonRetryableError(t *testing.T) {
	calls := 0
	wantErr := errors.New("boom")
	_, err := Do(context.Background(), DefaultConfig, "test", func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) || calls != 1 {
		t.Fatalf("expected single non-retried call, got calls=%d err=%v", calls, err)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	cfg := Config{Delays: []time.Duration{time.Millisecond, time.Millisecond}, Ceiling: time.Second}
	calls := 0
	result, err := Do(context.Background(), cfg, "test", func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("429 too many requests")
		}
		return "ok", nil
	})
	if err != nil || result != "ok" || calls != 2 {
		t.Fatalf("unexpected result=%q err=%v calls=%d", result, err, calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	cfg := Config{Delays: []time.Duration{time.Millisecond}, Ceiling: time.Second}
	calls := 0
	_, err := Do(context.Background(), cfg, "test", func() (int, error) {
		calls++
		return 0, errors.New("quota exceeded")
	})
	if !errors.Is(err, ErrExhausted) || calls != 2 {
		t.Fatalf("expected exhausted after 2 calls, got calls=%d err=%v", calls, err)
	}
}
