package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"sigqueue/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

// MemoryLimiter is a fixed-window counter per key, held in process.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

type window struct {
	count int
	endAt time.Time
}

type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

func NewMemory(cfg MemoryConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryLimiter{
		now:     cfg.Now,
		windows: make(map[string]*window),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, span time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.endAt) {
		if !ok && len(m.windows) >= m.maxKeys {
			m.expireLocked(now)
			if len(m.windows) >= m.maxKeys {
				return domain.RateLimitDecision{}, ErrCapacityExceeded
			}
		}
		w = &window{endAt: now.Add(span)}
		m.windows[key] = w
	}

	if w.count >= limit {
		return domain.RateLimitDecision{Limit: limit, ResetAt: w.endAt}, nil
	}
	w.count++
	return domain.RateLimitDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   w.endAt,
	}, nil
}

func (m *MemoryLimiter) expireLocked(now time.Time) {
	for key, w := range m.windows {
		if now.After(w.endAt) {
			delete(m.windows, key)
		}
	}
}
