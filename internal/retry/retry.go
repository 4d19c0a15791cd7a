// Package retry executes storage operations that may fail transiently,
// with bounded exponential backoff and optional jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

// Delay returns the backoff before retrying after the given zero-based
// attempt: min(base * 2^attempt, max), jittered by ±25% when enabled.
func Delay(policy types.RetryPolicy, attempt int) time.Duration {
	backoff := math.Min(
		float64(policy.MaxDelay),
		float64(policy.BaseDelay)*math.Pow(2, float64(attempt)),
	)
	if policy.Jitter {
		// Uniform in [0.75, 1.25).
		backoff *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(backoff)
}

// Do runs fn up to policy.MaxAttempts times. Non-retryable errors propagate
// immediately; retryable ones are retried after a capped exponential delay.
// After the final attempt fails, Do returns a RetryExhaustedError carrying
// the full attempt history. Each retry is logged with its attempt number
// and cause.
func Do[T any](ctx context.Context, log *logrus.Entry, operation string, policy types.RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}

	history := make([]error, 0, policy.MaxAttempts)
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		history = append(history, err)

		if policy.Retryable == nil || !policy.Retryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := Delay(policy, attempt)
		log.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).WithError(err).Warn("transient failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &types.RetryExhaustedError{
		Operation: operation,
		Attempts:  policy.MaxAttempts,
		History:   history,
	}
}
