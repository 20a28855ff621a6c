package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterSixthRequestWithinHourIsLimited(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter().WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "user:u1", 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		clock.Advance(time.Minute)
	}

	d, err := l.Allow(ctx, "user:u1", 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 55*time.Minute, d.RetryAfter)

	other, err := l.Allow(ctx, "user:u2", 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.Advance(55 * time.Minute)
	d, err = l.Allow(ctx, "user:u1", 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestMemoryLimiterCooldownClaim(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter().WithClock(clock.Now)

	ok, err := l.Claim(ctx, "order:o1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(30 * time.Second)
	ok, _ = l.Claim(ctx, "order:o1", 5*time.Minute)
	assert.False(t, ok)

	ok, _ = l.Claim(ctx, "order:o2", 5*time.Minute)
	assert.True(t, ok)

	clock.Advance(5 * time.Minute)
	ok, _ = l.Claim(ctx, "order:o1", 5*time.Minute)
	assert.True(t, ok)
}

func TestMemoryLimiterConcurrentHits(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, "guest:s1", 5, time.Hour)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func (l *MemoryLimiter) size() (windows, claims int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows), len(l.claims)
}

func TestMemoryLimiterDropsLapsedEntries(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter().WithClock(clock.Now)

	for i := 0; i < 100; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("user:%d", i), 5, time.Hour)
		require.NoError(t, err)
		_, err = l.Claim(ctx, fmt.Sprintf("confirm:%d", i), 5*time.Minute)
		require.NoError(t, err)
	}
	windows, claims := l.size()
	assert.Equal(t, 100, windows)
	assert.Equal(t, 100, claims)

	clock.Advance(10 * time.Minute)
	_, err := l.Claim(ctx, "confirm:new", 5*time.Minute)
	require.NoError(t, err)
	windows, claims = l.size()
	assert.Equal(t, 100, windows, "windows still open")
	assert.Equal(t, 1, claims)

	clock.Advance(time.Hour)
	d, err := l.Allow(ctx, "user:0", 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Remaining)
	windows, claims = l.size()
	assert.Equal(t, 1, windows)
	assert.Zero(t, claims)
}
