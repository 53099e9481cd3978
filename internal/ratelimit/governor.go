// Package ratelimit tracks per-key request logs inside a sliding time window
// and answers admit/deny decisions.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute

	// sharedKey is used when a caller cannot be identified.
	sharedKey = "default"
)

// Decision is the outcome of an admission attempt.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"resetTime"`
}

// Governor is implemented by the in-memory SlidingWindow and by RedisGovernor.
type Governor interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	ResetAt(ctx context.Context, key string, window time.Duration) (*time.Time, error)
	Reset(ctx context.Context) error
	Sweep(ctx context.Context) error
}

func normalizeKey(key string) string {
	if key == "" {
		return sharedKey
	}
	return key
}

func clampRemaining(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
