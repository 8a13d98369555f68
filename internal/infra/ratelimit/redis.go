package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigqueue/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares its counters across every API replica using the same
// Redis deployment as the queue.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client, now func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, span time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	millis := span.Milliseconds()
	if millis <= 0 {
		millis = 1000
	}
	values, err := allowScript.Run(ctx, r.client, []string{keyPrefix + key}, millis).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(values) < 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected rate limit response")
	}
	current, ttl := values[0], values[1]
	resetAt := r.now()
	if ttl > 0 {
		resetAt = resetAt.Add(time.Duration(ttl) * time.Millisecond)
	}
	return domain.RateLimitDecision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(current), 0),
		ResetAt:   resetAt,
	}, nil
}
