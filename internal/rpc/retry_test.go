package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetryConfig(5), "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("still broken")
	_, err := Retry(context.Background(), fastRetryConfig(4), "op", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestRetryShortCircuitsTerminalErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetryConfig(10), "op", func(context.Context) (int, error) {
		calls++
		return 0, ErrTraceTooLarge
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTraceTooLarge)
	assert.Equal(t, 1, calls)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetryConfig(10), "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The first attempt runs; cancellation takes effect before the next.
	assert.Equal(t, 1, calls)
}

func TestBackoffCeilingGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}

	assert.Equal(t, 250*time.Millisecond, cfg.backoffCeiling(0))
	assert.Equal(t, 500*time.Millisecond, cfg.backoffCeiling(1))
	assert.Equal(t, time.Second, cfg.backoffCeiling(2))
	// 250ms * 2^7 = 32s, clamped to the 30s cap.
	assert.Equal(t, 30*time.Second, cfg.backoffCeiling(7))
	assert.Equal(t, 30*time.Second, cfg.backoffCeiling(20))
}

func TestRetryConfigDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
