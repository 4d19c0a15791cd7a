package types

import (
	"errors"
	"time"
)

// Retry policy validation errors.
var (
	ErrMaxAttemptsInvalid = errors.New("max attempts must be at least 1")
	ErrBaseDelayInvalid   = errors.New("base delay must be positive")
	ErrMaxDelayInvalid    = errors.New("max delay must be at least the base delay")
)

// RetryPolicy configures bounded retry with exponential backoff. Policies
// are immutable value objects constructed once per operation category and
// shared across worker slots.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// Retryable classifies an error as transient. A nil predicate means
	// nothing is retryable and the first failure is final.
	Retryable func(error) bool
}

// Validate checks that the policy is well-formed.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrMaxAttemptsInvalid
	}
	if p.BaseDelay <= 0 {
		return ErrBaseDelayInvalid
	}
	if p.MaxDelay < p.BaseDelay {
		return ErrMaxDelayInvalid
	}
	return nil
}

// DefaultResetRetry is the policy applied to reset operations, sized for
// SQLite busy/locked contention between parallel workers.
func DefaultResetRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   25 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Jitter:      true,
		Retryable:   IsTransientStorage,
	}
}
