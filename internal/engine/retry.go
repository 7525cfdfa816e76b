package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// DefaultTimeout bounds a single provider operation.
const DefaultTimeout = 30 * time.Minute

// RetryPolicy controls how transient provider errors are retried. MaxRetries
// counts retries after the initial attempt, so a policy of 3 allows four
// calls in total.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// delay picks the sleep before the next retry: full jitter over an
// exponentially growing window capped at MaxDelay. Randomizing the whole
// window keeps concurrent workers from retrying in lockstep.
func (p *RetryPolicy) delay(attempt int) time.Duration {
	window := p.BaseDelay << uint(attempt)
	if window <= 0 || window > p.MaxDelay {
		window = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(window) + 1))
}

// WithTimeout bounds ctx for one resource operation, falling back to
// DefaultTimeout when no explicit timeout is given.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// RetryWithBackoff runs fn until it succeeds, shouldRetry rejects the error,
// or the policy's retry budget is spent. Between attempts it sleeps for a
// jittered backoff, aborting early if ctx is done.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	attempt := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxRetries, err)
		}

		timer := time.NewTimer(policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		attempt++
	}
}
