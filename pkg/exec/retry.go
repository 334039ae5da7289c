package exec

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy governs how many times, and with what backoff, an
// idempotent tool call is retried after a transient failure.
type RetryPolicy struct {
	MaxRetries int
	BackoffMS  int
}

// Do invokes fn under the retry policy implied by idempotent/
// isResourceRead: resource reads and non-idempotent tool calls get
// exactly one attempt; idempotent tool calls are retried up to
// MaxRetries times with backoff_ms*attempt delay between attempts.
// A dependency_missing failure is never retried regardless of
// idempotency, since a retry cannot make a missing upstream result
// appear.
func (p RetryPolicy) Do(ctx context.Context, idempotent, isResourceRead bool, fn func(context.Context) (any, error)) (any, error) {
	if isResourceRead || !idempotent {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrDependencyMissing) {
			return nil, err
		}
		if attempt > p.MaxRetries {
			break
		}
		delay := time.Duration(p.BackoffMS*attempt) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
