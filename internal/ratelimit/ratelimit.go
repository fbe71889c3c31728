// Package ratelimit admits or rejects requests per source identity using a
// sliding window over a trailing interval. The check runs before signature
// validation so unauthenticated flooding cannot exhaust verification cycles.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check. RetryAfter is the time
// until the oldest recorded request leaves the window; it is zero when the
// request was admitted.
type Decision struct {
	Allowed      bool
	CurrentCount int
	WindowStart  time.Time
	RetryAfter   time.Duration
}

// Limiter is the per-source admission check.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// NoOpLimiter always allows requests (for testing or disabled rate limiting).
type NoOpLimiter struct{}

func (n *NoOpLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (n *NoOpLimiter) Close() error {
	return nil
}
