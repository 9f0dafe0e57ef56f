package util

import (
	"context"
	"fmt"
	"time"
)

// BackoffFunc computes the wait before the next attempt. attempt is the
// 1-based number of the attempt that just failed.
type BackoffFunc func(attempt int, base time.Duration) time.Duration

// ExponentialBackoff doubles the wait per failed attempt: base, 2*base, 4*base
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return base << (attempt - 1)
}

// LinearBackoff grows the wait linearly: base, 2*base, 3*base
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int              // Maximum number of attempts, including the first
	BaseDelay   time.Duration    // Base wait fed into the backoff function
	MaxDelay    time.Duration    // Cap on a single computed wait (0 = no cap)
	Backoff     BackoffFunc      // Defaults to ExponentialBackoff
	RetryIf     func(error) bool // Defaults to retrying every error
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Backoff:     ExponentialBackoff,
	}
}

// RetryWithBackoff executes operation until it succeeds or the attempt
// budget is exhausted. The returned error wraps the last failure with the
// attempt count. Backoff waits are context-aware: cancellation cuts the
// wait short and stops the loop.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = ExponentialBackoff
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d",
					operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := backoff(attempt, cfg.BaseDelay)
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, wait, err)

		if werr := SleepContext(ctx, wait); werr != nil {
			return result, werr
		}
	}

	WarnLog("Retry: %s failed after %d attempts: %v", operationName, cfg.MaxAttempts, err)
	return result, fmt.Errorf("%s: %d attempts exhausted: %w", operationName, cfg.MaxAttempts, err)
}

// Retry executes a function with retry logic (no return value)
// Convenience wrapper for operations that don't return a value
func Retry(ctx context.Context, cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// SleepContext waits for d or until ctx is cancelled, whichever comes first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
