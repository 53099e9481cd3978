package ratelimit

import (
	"context"
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

func newTestWindow(limit int, window time.Duration) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSlidingWindow(limit, window)
	s.now = clock.Now
	return s, clock
}

func TestNewSlidingWindowDefaults(t *testing.T) {
	s := NewSlidingWindow(0, -time.Second)
	assert.Equal(t, DefaultLimit, s.DefaultLimit())
	assert.Equal(t, DefaultWindow, s.DefaultWindow())
}

func TestAdmitUntilLimitThenDeny(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(3, time.Minute)

	var remaining []int
	for range 3 {
		d, err := s.Admit(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		remaining = append(remaining, d.Remaining)
		clock.Advance(time.Second)
	}
	assert.Equal(t, []int{2, 1, 0}, remaining)

	d, err := s.Admit(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	require.NotNil(t, d.ResetAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC), d.ResetAt.UTC())
}

func TestAdmitAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(2, time.Minute)

	for range 2 {
		_, err := s.Admit(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
	}
	d, _ := s.Admit(ctx, "k", 2, time.Minute)
	require.False(t, d.Allowed)

	clock.Advance(time.Minute + time.Millisecond)
	d, err := s.Admit(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestAdmitBoundaryTimestampStillCounts(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(1, time.Minute)

	_, err := s.Admit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	d, err := s.Admit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "entry exactly one window old is still inside")
}

func TestAdmitNonPositiveLimitAlwaysDenies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestWindow(5, time.Minute)

	for _, limit := range []int{0, -3} {
		d, err := s.Admit(ctx, "k", limit, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Nil(t, d.ResetAt)
	}
}

func TestAdmitZeroWindowDedupsSameInstant(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(1, time.Minute)

	d, _ := s.Admit(ctx, "k", 1, 0)
	require.True(t, d.Allowed)
	d, _ = s.Admit(ctx, "k", 1, 0)
	assert.False(t, d.Allowed)

	clock.Advance(time.Millisecond)
	d, _ = s.Admit(ctx, "k", 1, 0)
	assert.True(t, d.Allowed)
}

func TestEmptyKeySharesDefaultBucket(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestWindow(2, time.Minute)

	_, err := s.Admit(ctx, "", 2, time.Minute)
	require.NoError(t, err)
	rem, err := s.Remaining(ctx, "default", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, rem)
}

func TestRemainingDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestWindow(3, time.Minute)

	rem, err := s.Remaining(ctx, "unknown", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, rem)
	assert.Equal(t, 0, s.Keys())

	rem, _ = s.Remaining(ctx, "unknown", -1, time.Minute)
	assert.Equal(t, 0, rem)

	_, _ = s.Admit(ctx, "a", 3, time.Minute)
	for range 3 {
		rem, _ = s.Remaining(ctx, "a", 3, time.Minute)
		assert.Equal(t, 2, rem)
	}
}

func TestResetAtTracksOldestEntry(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(5, time.Minute)

	at, err := s.ResetAt(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, at)

	start := clock.Now()
	_, _ = s.Admit(ctx, "a", 5, time.Minute)
	clock.Advance(10 * time.Second)
	_, _ = s.Admit(ctx, "a", 5, time.Minute)

	at, err = s.ResetAt(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.True(t, at.Equal(start.Add(time.Minute)))

	clock.Advance(55 * time.Second)
	at, _ = s.ResetAt(ctx, "a", time.Minute)
	require.NotNil(t, at)
	assert.True(t, at.Equal(start.Add(70*time.Second)))
}

func TestResetClearsAllKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestWindow(1, time.Minute)

	_, _ = s.Admit(ctx, "a", 1, time.Minute)
	_, _ = s.Admit(ctx, "b", 1, time.Minute)
	require.Equal(t, 2, s.Keys())

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 0, s.Keys())
	d, _ := s.Admit(ctx, "a", 1, time.Minute)
	assert.True(t, d.Allowed)
}

func TestSweepUsesPerKeyWindow(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestWindow(10, time.Minute)

	_, _ = s.Admit(ctx, "short", 10, 5*time.Second)
	_, _ = s.Admit(ctx, "long", 10, time.Hour)
	clock.Advance(10 * time.Second)

	require.NoError(t, s.Sweep(ctx))
	assert.Equal(t, 1, s.Keys())

	rem, _ := s.Remaining(ctx, "long", 10, time.Hour)
	assert.Equal(t, 9, rem)

	clock.Advance(time.Hour)
	require.NoError(t, s.Sweep(ctx))
	assert.Equal(t, 0, s.Keys())
}

func TestAdmitConcurrentNeverOverAdmits(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingWindow(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.Admit(ctx, "burst", 50, time.Minute)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
	rem, _ := s.Remaining(ctx, "burst", 50, time.Minute)
	assert.Equal(t, 0, rem)
}

var _ Governor = (*SlidingWindow)(nil)
