package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	p := New("test-provider", Config{MaxAttempts: 3})

	var calls int32
	got, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return 0, context.DeadlineExceeded
		}
		return 42, nil
	})

	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, int32(2), calls)
}

func TestExecute_DoesNotRetryPermanentError(t *testing.T) {
	p := New("test-provider", Config{MaxAttempts: 3})
	permanent := errors.New("unsupported symbol")

	var calls int32
	_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, permanent
	})

	require.ErrorIs(t, err, permanent)
	require.Equal(t, int32(1), calls)
}

func TestExecute_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := New("flaky-provider", Config{
		MaxAttempts:             1,
		BreakerFailureThreshold: 2,
		BreakerOpenDuration:     time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
			return 0, context.DeadlineExceeded
		})
		require.Error(t, err)
	}

	var called bool
	_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	require.Error(t, err, "breaker should be open and short-circuit the call")
	require.False(t, called)
}

func TestExecute_BreakerOpenShortCircuitsBeforeConsumingRateLimitToken(t *testing.T) {
	p := New("flaky-limited-provider", Config{
		MaxAttempts:             1,
		BreakerFailureThreshold: 1,
		BreakerOpenDuration:     time.Minute,
		RequestsPerSecond:       1,
		Burst:                   1,
	})

	_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})
	require.Error(t, err, "first call trips the breaker")

	// The tripping call above spent the burst token. A breaker-open
	// short-circuit must never reach the rate limiter (spec.md §4.4
	// composition order), so the next call takes no token: the bucket can
	// only have refilled in the meantime.
	tokensBefore := p.limiter.Tokens()
	got, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) { return 1, nil })
	require.Error(t, err, "breaker should still be open")
	require.Equal(t, 0, got)

	require.GreaterOrEqual(t, p.limiter.Tokens(), tokensBefore)
}

func TestExecute_RateLimiterBlocksUntilTokenOrCancel(t *testing.T) {
	p := New("slow-provider", Config{
		MaxAttempts:       1,
		RequestsPerSecond: 1,
		Burst:             1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Drain the single burst token.
	_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	_, err = Execute(ctx, p, func(ctx context.Context) (int, error) { return 2, nil })
	require.Error(t, err, "second call should block past the short deadline")
}
