// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrContention marks an operation that kept losing races until its retry
// budget ran out. Callers map it to a "try again later" outcome.
var ErrContention = errors.New("contention: retry budget exhausted")

// ContentionError is returned when every attempt failed with a retryable error.
type ContentionError struct {
	Attempts int
	Cause    error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrContention, e.Attempts, e.Cause)
}

// Unwrap exposes both ErrContention and the last cause to errors.Is.
func (e *ContentionError) Unwrap() []error {
	return []error{ErrContention, e.Cause}
}

// IsContention reports whether err is a retry budget exhaustion.
func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or
// MaxRetries+1 attempts have been made. The delay is applied between
// attempts only. Attempt numbers start at 0.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	retryable := p.classifier()
	schedule := p.schedule()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, schedule.NextBackOff()); err != nil {
				return err
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return &ContentionError{Attempts: p.MaxRetries + 1, Cause: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
