package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, RetryOptions{MaxAttempts: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, RetryOptions{MaxAttempts: 3, Delay: time.Millisecond})
	require.Error(t, err)
	require.Equal(t, 3, calls)

	var rerr *RetryError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, 3, rerr.Attempts)
	require.ErrorIs(t, err, boom)
}

func TestRetryRecoversMidway(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, RetryOptions{MaxAttempts: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, RetryOptions{MaxAttempts: 5, Delay: 50 * time.Millisecond})
	require.Error(t, err)
	require.Equal(t, 1, calls)

	var rerr *RetryError
	require.ErrorAs(t, err, &rerr)
}

func TestRetryLinearBackoff(t *testing.T) {
	start := time.Now()
	_ = Retry(context.Background(), func(context.Context) error {
		return errors.New("always")
	}, RetryOptions{MaxAttempts: 3, Delay: 10 * time.Millisecond})
	// Sleeps are delay*1 + delay*2 between the three attempts.
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
