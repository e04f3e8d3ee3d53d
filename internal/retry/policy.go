// internal/retry/policy.go
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/avivl/quorum-guard/internal/store"
	"github.com/cenkalti/backoff/v4"
)

// Backoff names a delay schedule.
type Backoff string

const (
	// BackoffConstant waits RetryDelay between every pair of attempts.
	BackoffConstant Backoff = "constant"
	// BackoffExponential doubles the delay after each retry, capped at MaxDelay. No jitter.
	BackoffExponential Backoff = "exponential"
)

// Classifier reports whether a failed attempt may be retried.
type Classifier func(err error) bool

// Policy bounds how an operation is re-attempted after losing a race.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt; 0 means try once.
	MaxRetries int           `yaml:"maxRetries" mapstructure:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay" mapstructure:"retryDelay"`
	Backoff    Backoff       `yaml:"backoff" mapstructure:"backoff"`
	// MaxDelay caps exponential growth. Zero means uncapped.
	MaxDelay time.Duration `yaml:"maxDelay" mapstructure:"maxDelay"`
	// Classify defaults to IsConflict.
	Classify Classifier `yaml:"-" mapstructure:"-"`
}

// DefaultPolicy is three retries 100ms apart.
var DefaultPolicy = Policy{
	MaxRetries: 3,
	RetryDelay: 100 * time.Millisecond,
	Backoff:    BackoffConstant,
}

// Validate rejects negative budgets and unknown schedules.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("maxRetries must be non-negative")
	}
	if p.RetryDelay < 0 {
		return errors.New("retryDelay must be non-negative")
	}
	switch p.Backoff {
	case "", BackoffConstant, BackoffExponential:
	default:
		return fmt.Errorf("unknown backoff %q", p.Backoff)
	}
	return nil
}

func (p Policy) classifier() Classifier {
	if p.Classify != nil {
		return p.Classify
	}
	return IsConflict
}

// schedule returns the delay source for one Do call.
func (p Policy) schedule() backoff.BackOff {
	if p.Backoff != BackoffExponential {
		return backoff.NewConstantBackOff(p.RetryDelay)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.Reset()
	return b
}

// IsConflict is the default classifier: lock contention and version
// conflicts are retryable, everything else is terminal.
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrCannotLock) || errors.Is(err, store.ErrKeyModified)
}
