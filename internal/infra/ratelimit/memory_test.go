package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemory(MemoryConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "acct:alice", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	decision, err := limiter.Allow(ctx, "acct:alice", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("expected third request to be limited, got %+v", decision)
	}

	other, err := limiter.Allow(ctx, "acct:bob", 2, time.Minute)
	if err != nil || !other.Allowed {
		t.Fatalf("other key should be independent: %+v %v", other, err)
	}

	now = now.Add(2 * time.Minute)
	decision, err = limiter.Allow(ctx, "acct:alice", 2, time.Minute)
	if err != nil || !decision.Allowed || decision.Remaining != 1 {
		t.Fatalf("expected fresh window, got %+v %v", decision, err)
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	limiter := NewMemory(MemoryConfig{})
	decision, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("zero limit should allow, got %+v %v", decision, err)
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemory(MemoryConfig{Now: func() time.Time { return now }, MaxKeys: 1})
	ctx := context.Background()
	if _, err := limiter.Allow(ctx, "a", 5, time.Minute); err != nil {
		t.Fatalf("allow a: %v", err)
	}
	if _, err := limiter.Allow(ctx, "b", 5, time.Minute); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "b", 5, time.Minute); err != nil {
		t.Fatalf("expired window should free capacity: %v", err)
	}
}
