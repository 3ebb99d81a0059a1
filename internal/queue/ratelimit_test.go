package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, 2)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	allowed, used, _, err := rl.Allow(context.Background(), "anon-1", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "anon-1", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "anon-1", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}

	// A different identity gets its own window.
	allowed, used, _, err = rl.Allow(context.Background(), "anon-2", now)
	if err != nil {
		t.Fatalf("allow other identity: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected fresh window for other identity, got allowed=%v used=%d", allowed, used)
	}
}

func TestMessageDeduplicatorMarkFirst(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewMessageDeduplicator(rdb, time.Hour)

	first, err := d.MarkFirst(context.Background(), "anon-1", "client-42")
	if err != nil {
		t.Fatalf("mark#1: %v", err)
	}
	if !first {
		t.Fatalf("first submission must be marked first")
	}

	again, err := d.MarkFirst(context.Background(), "anon-1", "client-42")
	if err != nil {
		t.Fatalf("mark#2: %v", err)
	}
	if again {
		t.Fatalf("resubmission of the same client id must not be first")
	}

	other, err := d.MarkFirst(context.Background(), "anon-2", "client-42")
	if err != nil {
		t.Fatalf("mark other identity: %v", err)
	}
	if !other {
		t.Fatalf("same client id under another identity is independent")
	}
}
