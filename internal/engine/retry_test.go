package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/price-engine/internal/provider"
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetryPolicy_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "alpha", testLogger(), func(context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "alpha", testLogger(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &provider.TransientError{Source: "alpha", Err: errors.New("connection reset")}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExhaustionReturnsTypedError(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "alpha", testLogger(), func(context.Context) error {
		calls++
		return &provider.TransientError{Source: "alpha", Err: errors.New("timeout")}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "alpha", exhausted.Source)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRetryPolicy_DoesNotRetryValidation(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "alpha", testLogger(), func(context.Context) error {
		calls++
		return &provider.ValidationError{Source: "alpha", Message: "bad schema"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, provider.IsValidation(err))
}

func TestRetryPolicy_DoesNotRetryRateLimit(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "alpha", testLogger(), func(context.Context) error {
		calls++
		return &provider.RateLimitError{Source: "alpha"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, provider.IsRateLimited(err))
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2}.Execute(ctx, "alpha", testLogger(), func(context.Context) error {
		calls++
		cancel()
		return &provider.TransientError{Source: "alpha", Err: errors.New("timeout")}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancel")
}
