package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		RetryAll:     true,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), nil)

	attempts := 0
	result, err := r.DoWithResult(context.Background(), func() (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return errors.New("always")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	policy := fastPolicy(3)
	policy.RetryAll = false
	r := NewBackoffRetryer(policy, nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return types.NewError(types.ErrInvalidRequest, "bad prompt")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryableMarkedErrorIsRetried(t *testing.T) {
	policy := fastPolicy(2)
	policy.RetryAll = false
	r := NewBackoffRetryer(policy, nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = 50 * time.Millisecond
	r := NewBackoffRetryer(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := r.Do(ctx, func() error {
		attempts++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestOnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var callbackAttempts []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbackAttempts = append(callbackAttempts, attempt)
	}
	r := NewBackoffRetryer(policy, nil)

	_ = r.Do(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, callbackAttempts)
}
