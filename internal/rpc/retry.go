package rpc

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/metrics"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

func RetryConfigFromSettings(cfg config.RetryConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(cfg.BaseDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.Multiplier > 1 {
		rc.Multiplier = cfg.Multiplier
	}
	return rc
}

// backoffCeiling returns min(MaxDelay, BaseDelay * Multiplier^attempt).
func (c RetryConfig) backoffCeiling(attempt int) time.Duration {
	d := float64(c.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= c.Multiplier
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// Retry runs fn with exponential backoff and full jitter: the delay
// before attempt k+1 is uniform in [0, min(cap, base*m^k)]. Errors the
// taxonomy marks terminal short-circuit immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetriable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		ceiling := cfg.backoffCeiling(attempt)
		delay := time.Duration(rand.Int63n(int64(ceiling) + 1))
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying RPC operation")
		metrics.RPCRetries.WithLabelValues(op).Inc()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}
