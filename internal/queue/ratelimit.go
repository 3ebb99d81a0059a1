package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter caps chat turns per anonymous identity per hour.
type RateLimiter struct {
	redis *redis.Client
	limit int64
}

func NewRateLimiter(rdb *redis.Client, limit int64) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit}
}

func (r *RateLimiter) Allow(ctx context.Context, identityID string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("assist:ratelimit:%s:%s", identityID, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

// MessageDeduplicator guards the exactly-once persistence invariant:
// a client-generated message id is persisted on its first submission
// only, however many times the turn is retried.
type MessageDeduplicator struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewMessageDeduplicator(rdb *redis.Client, ttl time.Duration) *MessageDeduplicator {
	return &MessageDeduplicator{redis: rdb, ttl: ttl}
}

func (d *MessageDeduplicator) MarkFirst(ctx context.Context, identityID, clientID string) (bool, error) {
	key := fmt.Sprintf("assist:msg:%s:%s", identityID, clientID)
	ok, err := d.redis.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}
