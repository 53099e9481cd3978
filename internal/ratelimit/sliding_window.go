package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// SlidingWindow is a process-local sliding-window log. Every key owns an
// ascending list of admission timestamps; entries older than now-window are
// purged whenever the key is touched.
type SlidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	windows  map[string]time.Duration

	defaultLimit  int
	defaultWindow time.Duration
	now           func() time.Time
}

func NewSlidingWindow(defaultLimit int, defaultWindow time.Duration) *SlidingWindow {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindow
	}
	return &SlidingWindow{
		requests:      make(map[string][]time.Time),
		windows:       make(map[string]time.Duration),
		defaultLimit:  defaultLimit,
		defaultWindow: defaultWindow,
		now:           time.Now,
	}
}

func (s *SlidingWindow) DefaultLimit() int             { return s.defaultLimit }
func (s *SlidingWindow) DefaultWindow() time.Duration { return s.defaultWindow }

// Admit records an admission for key when capacity remains.
func (s *SlidingWindow) Admit(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	key = normalizeKey(key)
	if window < 0 {
		window = 0
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.purgeLocked(key, now, window)
	s.windows[key] = window

	decision := Decision{Limit: limit}
	if limit-len(log) > 0 {
		log = append(log, now)
		decision.Allowed = true
		decision.Remaining = limit - len(log)
	}
	s.requests[key] = log
	decision.ResetAt = resetAt(log, window)
	return decision, nil
}

// Remaining reports capacity left for key without recording an admission.
func (s *SlidingWindow) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	key = normalizeKey(key)
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[key]; !ok {
		return clampRemaining(limit), nil
	}
	log := s.purgeLocked(key, now, window)
	s.requests[key] = log
	return clampRemaining(limit - len(log)), nil
}

// ResetAt returns the instant the oldest surviving entry leaves the window,
// or nil when the key has no entries.
func (s *SlidingWindow) ResetAt(_ context.Context, key string, window time.Duration) (*time.Time, error) {
	key = normalizeKey(key)
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[key]; !ok {
		return nil, nil
	}
	log := s.purgeLocked(key, now, window)
	s.requests[key] = log
	return resetAt(log, window), nil
}

func (s *SlidingWindow) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[string][]time.Time)
	s.windows = make(map[string]time.Duration)
	return nil
}

// Sweep prunes every key with its last seen window (default window when the
// key was never admitted) and drops empty logs.
func (s *SlidingWindow) Sweep(context.Context) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.requests {
		window, ok := s.windows[key]
		if !ok {
			window = s.defaultWindow
		}
		log := s.purgeLocked(key, now, window)
		if len(log) == 0 {
			delete(s.requests, key)
			delete(s.windows, key)
			continue
		}
		s.requests[key] = log
	}
	return nil
}

// Keys reports how many keys are currently tracked.
func (s *SlidingWindow) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *SlidingWindow) clock() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *SlidingWindow) purgeLocked(key string, now time.Time, window time.Duration) []time.Time {
	log := s.requests[key]
	cutoff := now.Add(-window)
	idx := slices.IndexFunc(log, func(ts time.Time) bool { return !ts.Before(cutoff) })
	if idx < 0 {
		return log[:0]
	}
	return slices.Delete(log, 0, idx)
}

func resetAt(log []time.Time, window time.Duration) *time.Time {
	if len(log) == 0 {
		return nil
	}
	t := log[0].Add(window)
	return &t
}
