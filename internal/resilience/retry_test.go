package resilience

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func alwaysTransient(error) bool { return true }
func neverTransient(error) bool  { return false }

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), testLogger(), alwaysTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentErrorFailsImmediately(t *testing.T) {
	permanent := errors.New("schema violation")
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), testLogger(), neverTransient, func(context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("timeout")
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), testLogger(), alwaysTransient, func(context.Context) error {
		calls++
		return transient
	})

	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Minute, MaxDelay: time.Minute},
		testLogger(), alwaysTransient, func(context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestRetry_DelayDoublesUpToCap(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	start := time.Now()
	_ = Retry(context.Background(), policy, testLogger(), alwaysTransient, func(context.Context) error {
		return errors.New("transient")
	})
	elapsed := time.Since(start)

	// Delays: 1ms, 2ms, 2ms, 2ms (capped). Generous upper bound to avoid
	// flaking on slow machines.
	assert.GreaterOrEqual(t, elapsed, 7*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy(0)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 5*time.Second, p.MaxDelay)

	assert.Equal(t, 7, DefaultRetryPolicy(7).MaxAttempts)
}
