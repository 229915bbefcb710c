// Package ratelimit implements fixed-window request rate limiting backed by
// the same Redis substrate that backs the asynq queue (spec §6 "substrate
// connection"). It is the
// notifyhub-domain replacement for the teacher's presence package, which
// never grew past its Phase 2 stub.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is one rate-limit check's outcome.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Limiter enforces fixed-window counters in Redis: INCR the window's key,
// set its expiry on first write, and compare against the configured limit.
type Limiter struct {
	client *redis.Client
}

// New builds a Limiter against the given Redis connection URL.
func New(redisURL string) (*Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Limiter{client: redis.NewClient(opt)}, nil
}

// Close releases the underlying Redis connection.
func (l *Limiter) Close() error {
	return l.client.Close()
}

// Check increments key's counter within the current window and reports
// whether the caller is still within limit. The window is fixed, not
// sliding: the counter resets entirely at each window boundary.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("setting rate limit window expiry: %w", err)
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}
