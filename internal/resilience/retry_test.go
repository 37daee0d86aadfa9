package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_EmptyResultNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return apperr.EmptyResult("overpass.roads", "no roads")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, apperr.ErrEmptyResult))
}

func TestDo_ExternalRetrievalTimeoutRetried(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastRetry(3)
	cfg.OnRetry = func(int, error) { retries++ }
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return apperr.Wrap(apperr.KindExternalRetrieval, "overpass.features", NewTransientError(errors.New("gateway timeout"), 504))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("x"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("flaky"), 502)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestBackoff_Schedules(t *testing.T) {
	linear := RetryConfig{InitialBackoff: time.Minute, MaxBackoff: time.Hour, Schedule: Linear}
	assert.Equal(t, time.Minute, linear.Backoff(0))
	assert.Equal(t, 3*time.Minute, linear.Backoff(2))

	exp := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2, Schedule: Exponential}
	assert.Equal(t, 4*time.Second, exp.Backoff(2))
	assert.Equal(t, 5*time.Second, exp.Backoff(10))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", NewTransientError(errors.New("x"), 429), true},
		{"timeout text", errors.New("read tcp: i/o timeout"), true},
		{"plain", errors.New("bad query"), false},
		{"empty result", apperr.Wrap(apperr.KindEmptyResult, "op", NewTransientError(errors.New("x"), 504)), false},
		{"invalid input", apperr.InvalidInput("op", "bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	assert.True(t, IsTransientHTTPStatus(504))
	assert.True(t, IsTransientHTTPStatus(429))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransientHTTPStatus(200))
}
