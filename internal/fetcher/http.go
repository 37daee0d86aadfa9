// Package fetcher is the rate-limited HTTP client shared by the Overpass and
// Nominatim collaborators.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries bounds attempts on 429/5xx and network errors.
	MaxRetries int
	// RequestsPerSecond is the initial rate; Burst defaults to 1.
	RequestsPerSecond float64
	Burst             int
	// Backoff overrides the retry schedule between attempts.
	Backoff resilience.RetryConfig
	// Breaker, when set, short-circuits calls while the upstream is failing.
	Breaker *resilience.CircuitBreaker
	Client  *http.Client
}

// AdaptiveLimiter wraps a rate.Limiter that slows down on 429 and speeds up
// again on success, staying between initial/4 and initial*2.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(a.Limit() * 1.2)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(a.Limit() * 0.5)
	zap.L().Warn("fetcher: reducing request rate after 429", zap.Float64("rate", float64(a.Limit())))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r > a.initialRate*2 {
		r = a.initialRate * 2
	}
	if r < a.initialRate/4 {
		r = a.initialRate / 4
	}
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// HTTPFetcher performs JSON requests with rate limiting and retry.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "food-access-cli/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Backoff.InitialBackoff == 0 {
		opts.Backoff = resilience.DefaultRetryConfig()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:  client,
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

// GetJSON issues a GET and decodes the JSON response into out.
func (f *HTTPFetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	return f.doJSON(ctx, "fetcher.get", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}, out)
}

// PostFormJSON posts form values and decodes the JSON response into out.
func (f *HTTPFetcher) PostFormJSON(ctx context.Context, rawURL string, form url.Values, out any) error {
	body := form.Encode()
	return f.doJSON(ctx, "fetcher.post", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

func (f *HTTPFetcher) doJSON(ctx context.Context, op string, build func(context.Context) (*http.Request, error), out any) error {
	call := func(ctx context.Context) error {
		return f.doWithRetry(ctx, op, build, out)
	}
	if f.opts.Breaker == nil {
		return call(ctx)
	}
	err := f.opts.Breaker.Execute(ctx, call)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.Wrap(apperr.KindExternalRetrieval, op, err)
	}
	return err
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, op string, build func(context.Context) (*http.Request, error), out any) error {
	retry := f.opts.Backoff
	retry.MaxAttempts = f.opts.MaxRetries
	retry.OnRetry = resilience.RetryLogger("http", op)

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := build(ctx)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, op, eris.Wrap(err, "fetcher: create request"))
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrapf(err, "fetcher: request %s", req.URL.Host), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode == http.StatusTooManyRequests {
			f.limiter.OnRateLimit()
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resilience.NewTransientError(eris.Errorf("fetcher: http %d from %s", resp.StatusCode, req.URL.Host), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return apperr.Wrap(apperr.KindInvalidInput, op,
				eris.Errorf("fetcher: unexpected status %d from %s: %s", resp.StatusCode, req.URL.Host, strings.TrimSpace(string(snippet))))
		}

		f.limiter.OnSuccess()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "fetcher: decode response"), resp.StatusCode)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != 0 {
		return err
	}
	return apperr.Wrap(apperr.KindExternalRetrieval, op, err)
}
