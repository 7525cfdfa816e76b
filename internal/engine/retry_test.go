package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/pkg/provider"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return provider.NewTransient(errors.New("throttled"))
		}
		return nil
	}, provider.IsTransient)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_PermanentErrorFailsImmediately(t *testing.T) {
	calls := 0
	permanent := provider.NewPermanent(errors.New("access denied"))
	err := RetryWithBackoff(context.Background(), fastPolicy(3), func() error {
		calls++
		return permanent
	}, provider.IsTransient)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(2), func() error {
		calls++
		return provider.NewTransient(errors.New("throttled"))
	}, provider.IsTransient)

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt plus two retries
	assert.Contains(t, err.Error(), "max retries")
}

func TestRetryWithBackoff_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, fastPolicy(5), func() error {
		calls++
		return provider.NewTransient(errors.New("throttled"))
	}, provider.IsTransient)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient_FallsBackToMessagePatterns(t *testing.T) {
	assert.True(t, provider.IsTransient(errors.New("RequestLimitExceeded: request limit hit")))
	assert.True(t, provider.IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.False(t, provider.IsTransient(errors.New("access denied")))
	assert.False(t, provider.IsTransient(nil))
}

func TestWithTimeout_DefaultsWhenUnset(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Minute)
}
