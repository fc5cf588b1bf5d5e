package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(n int) *Retrier {
	return New(WithMaxAttempts(n), WithInitialDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond), WithJitter(0))
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("broker busy"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	base := errors.New("bad payload")
	calls := 0
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(base)
	})
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDoReturnsUnwrappedErrorAfterLastAttempt(t *testing.T) {
	base := errors.New("timeout")
	calls := 0
	var retries []int
	r := New(WithMaxAttempts(2), WithInitialDelay(time.Millisecond), WithJitter(0),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(base)
	})
	assert.Same(t, base, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retries)
}

func TestDoHonoursRetryIf(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain")
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithRetryIf(func(error) bool { return true }))
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fast(3).Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoStopsOnPlainErrorWithoutRetryIf(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("not found")
	})
	assert.EqualError(t, err, "not found")
	assert.Equal(t, 1, calls)
}

func TestDoPermanentOnSingleAttempt(t *testing.T) {
	base := errors.New("rejected")
	err := fast(1).Do(context.Background(), func(context.Context) error { return Permanent(base) })
	assert.Same(t, base, err)
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Hour), WithJitter(0),
		WithOnRetry(func(int, error, time.Duration) { cancel() }))

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return Retryable(errors.New("busy"))
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestHandlerRetrierAttempts(t *testing.T) {
	assert.Equal(t, 3, HandlerRetrier(0).config.MaxAttempts)
	assert.Equal(t, 5, HandlerRetrier(5).config.MaxAttempts)
}
