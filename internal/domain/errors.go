package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingCredentials = errors.New("missing provider credentials")
	ErrNotFound           = errors.New("not found")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UpstreamError reports a failed or malformed response from a data provider.
type UpstreamError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InferenceError reports a failed classification call.
type InferenceError struct {
	Task string
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Task, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ExhaustedError reports a rate limit denial.
type ExhaustedError struct {
	Key       string
	Limit     int
	Remaining int
	ResetAt   *time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exhausted for %q (limit %d)", e.Key, e.Limit)
}

// NewUpstreamError wraps err unless it already is an UpstreamError.
func NewUpstreamError(provider, op string, status int, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Provider: provider, Op: op, StatusCode: status, Err: err}
}
