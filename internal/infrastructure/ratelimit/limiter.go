// Package ratelimit holds the counters the notification dispatcher uses to
// throttle callers and suppress duplicate sends.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow records one hit for key in a fixed window starting at the first
	// hit and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	// Claim takes key for ttl. It returns false while an earlier claim holds.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
