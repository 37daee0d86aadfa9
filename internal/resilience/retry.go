package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Schedule selects how the delay grows between attempts.
type Schedule string

const (
	// Exponential multiplies the delay by Multiplier after each attempt.
	Exponential Schedule = "exponential"
	// Linear waits InitialBackoff*(attempt+1); used for slow upstreams such
	// as Overpass where a fixed cool-down per failure works better.
	Linear Schedule = "linear"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Schedule       Schedule

	// JitterFraction adds ±fraction of the computed delay.
	JitterFraction float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the configuration used for upstream HTTP calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Schedule:       Exponential,
		JitterFraction: 0.25,
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is cancelled.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Schedule == "" {
		cfg.Schedule = Exponential
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// Backoff returns the delay to sleep after the given zero-based attempt.
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	var delay float64
	switch cfg.Schedule {
	case Linear:
		delay = float64(cfg.InitialBackoff) * float64(attempt+1)
	default:
		delay = float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	}
	if cfg.MaxBackoff > 0 && delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		spread := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
