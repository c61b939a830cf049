// Package retry runs an operation with exponential backoff, letting a
// classifier decide which failures are worth another attempt.
package retry

import (
	"context"
	"time"
)

// Class tags an error for the retry loop.
type Class int

const (
	// ClassRetryable marks transient failures (timeouts, flaky RPC).
	ClassRetryable Class = iota
	// ClassFatal marks failures no retry can fix; the loop aborts at once.
	ClassFatal
	// ClassUnknown is treated like retryable: better to spend the budget
	// than to give up on an unrecognized error.
	ClassUnknown
)

// Classifier maps an error to a Class. A nil classifier retries everything.
type Classifier func(error) Class

// Policy controls attempt count and backoff shape.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy matches the quote client: 3 attempts, 500ms * 2^n backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, the classifier reports a fatal error, the
// attempt budget is spent, or the context is done. The last error is
// returned on failure.
func Do(ctx context.Context, policy Policy, classify Classifier, fn func(ctx context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if classify != nil && classify(lastErr) == ClassFatal {
			return lastErr
		}
		if attempt == policy.Attempts-1 {
			break
		}

		delay := policy.BaseDelay << uint(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
