package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneEvery spaces out the scans that drop lapsed windows and claims.
const pruneEvery = time.Minute

// MemoryLimiter keeps counters in process. Only correct for a single
// instance; production runs use Redis.
type MemoryLimiter struct {
	mu        sync.Mutex
	now       func() time.Time
	windows   map[string]window
	claims    map[string]time.Time
	nextPrune time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		now:     time.Now,
		windows: make(map[string]window),
		claims:  make(map[string]time.Time),
	}
}

// WithClock swaps the time source, for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, d time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(d)}
	}
	w.count++
	l.windows[key] = w

	if w.count <= limit {
		return Decision{Allowed: true, Remaining: limit - w.count}, nil
	}
	return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
}

func (l *MemoryLimiter) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if until, ok := l.claims[key]; ok && now.Before(until) {
		return false, nil
	}
	l.claims[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	if now.Before(l.nextPrune) {
		return
	}
	l.nextPrune = now.Add(pruneEvery)
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	for key, until := range l.claims {
		if !now.Before(until) {
			delete(l.claims, key)
		}
	}
}
