package models

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every component. Callers classify with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	// ErrStorage marks a transient store failure. The outcome of the operation is unknown
	// and the caller may retry.
	ErrStorage   = errors.New("storage unavailable")
	ErrIntegrity = errors.New("integrity violation")
)

// InvalidInput wraps ErrInvalidInput with a description.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// StorageError wraps a store failure for op so it matches ErrStorage and still exposes the cause.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// RateLimitError is returned when an action is denied by the rate limiter.
type RateLimitError struct {
	Action     string
	Limit      int
	Count      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s allowed %d per window, retry in %s",
		e.Action, e.Limit, e.RetryAfter.Round(time.Second))
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Remaining is how many admissions are left in the current window.
func (e *RateLimitError) Remaining() int {
	if e.Count >= e.Limit {
		return 0
	}
	return e.Limit - e.Count
}
