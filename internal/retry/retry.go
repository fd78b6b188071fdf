// Package retry provides a small retry-with-backoff combinator for
// transient errors on network calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// Backoff returns the wait after the given attempt (1-based). When
	// nil, Linear(time.Second) is used.
	Backoff func(attempt int) time.Duration
	// ShouldRetry is an optional predicate that lets callers classify
	// errors as retryable. When nil, all non-nil errors are retried.
	ShouldRetry func(err error) bool
}

// Linear returns a backoff function growing as attempt*unit.
func Linear(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// Exponential returns a backoff function doubling from initial up to max.
func Exponential(initial, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

// Do calls fn up to cfg.MaxAttempts times, waiting cfg.Backoff(attempt)
// between attempts. It stops early when ctx is cancelled, fn returns nil,
// or ShouldRetry rejects the error. The error from the last attempt is
// returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = Linear(time.Second)
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return lastErr
}
