package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:         "test-agent",
		Timeout:           5 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 1000,
		Burst:             10,
		Backoff:           resilience.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	})
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"name":"Albany"}`))
	}))
	defer srv.Close()

	var out struct{ Name string }
	require.NoError(t, newTestFetcher().GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "Albany", out.Name)
}

func TestPostFormJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "[out:json];", r.PostForm.Get("data"))
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestFetcher().PostFormJSON(context.Background(), srv.URL, url.Values{"data": {"[out:json];"}}, &out)
	require.NoError(t, err)
	assert.Contains(t, out, "elements")
}

func TestGetJSON_RetriesGatewayTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, newTestFetcher().GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ExhaustedIsExternalRetrieval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestFetcher().GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExternalRetrieval))
	assert.True(t, resilience.IsTransient(err))
}

func TestGetJSON_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "parse error", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestFetcher().GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.Contains(t, err.Error(), "parse error")
}

func TestGetJSON_CircuitOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher()
	f.opts.MaxRetries = 1
	f.opts.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "test", FailureThreshold: 1, ResetTimeout: time.Hour})

	var out map[string]any
	require.Error(t, f.GetJSON(context.Background(), srv.URL, &out))
	err := f.GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, errors.Is(err, apperr.ErrExternalRetrieval))
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Limit(4), 1)
	for range 10 {
		a.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(1), a.Limit())
	for range 20 {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(8), a.Limit())
}
