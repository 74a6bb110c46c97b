package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Multiplier: 2}
}

func TestDefaultRetryPolicy_DelaysArePowersOfTwo(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
}

func TestRetryPolicy_Delay_CappedAtMax(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Multiplier: 10, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, p.Delay(3))
}

func TestRetryWithResult_SucceedsAfterFailures(t *testing.T) {
	// Given: a function failing twice
	calls := 0
	fn := func(attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}

	// When: retrying with three retries
	result, err := RetryWithResult(context.Background(), fastPolicy(3), fn)

	// Then: the third attempt wins
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastPolicy(3), func(int) (int, error) {
		calls++
		return 0, errors.New("always")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestRetryWithResult_StopsOnNonRetryable(t *testing.T) {
	// Given: a policy that only retries service errors
	p := fastPolicy(3)
	p.ShouldRetry = IsRetryable
	calls := 0

	// When: the function fails with a validation error
	_, err := RetryWithResult(context.Background(), p, func(int) (int, error) {
		calls++
		return 0, ValidationError("bad", nil)
	})

	// Then: no retry happens and the typed error survives
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsValidation(err))
}

func TestRetryWithResult_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour, Multiplier: 2}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := RetryWithResult(ctx, p, func(int) (int, error) {
			calls++
			return 0, errors.New("fail")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetry_NoResult(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(1), func(int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
