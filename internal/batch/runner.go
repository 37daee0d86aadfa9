// Package batch drives the accessibility pipeline over many places with
// bounded concurrency, retry and result caching.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/cache"
	"github.com/sells-group/food-access-cli/internal/monitoring"
	"github.com/sells-group/food-access-cli/internal/resilience"
)

// Processor computes the result bundle of one place. *access.Pipeline
// satisfies it.
type Processor interface {
	Run(ctx context.Context, place string) (*access.Bundle, error)
	Options() access.Options
}

// Sink receives every successful bundle, e.g. to export it.
type Sink func(ctx context.Context, runID uuid.UUID, b *access.Bundle) error

// Options configures a Runner.
type Options struct {
	Concurrency   int
	Retry         resilience.RetryConfig
	ProgressEvery int
	CacheDriver   string // label for cache metrics
}

// DefaultOptions retries each place three times, waiting 60s, 120s, ...
// between attempts, and reports progress every five places.
func DefaultOptions() Options {
	return Options{
		Concurrency: 1,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Minute,
			MaxBackoff:     10 * time.Minute,
			Schedule:       resilience.Linear,
		},
		ProgressEvery: 5,
		CacheDriver:   "none",
	}
}

// Summary is the aggregate outcome of a batch.
type Summary struct {
	RunID      uuid.UUID
	Successful []string
	Failed     []string
	Empty      []string          // successful places without accessibility data
	Errors     map[string]string // place -> final error
	CacheHits  int
	Elapsed    time.Duration
}

// Total returns the number of processed places.
func (s *Summary) Total() int { return len(s.Successful) + len(s.Failed) }

// Runner processes places independently; one place's failure never stops
// the others.
type Runner struct {
	proc    Processor
	cache   cache.Cache
	sink    Sink
	opts    Options
	metrics *monitoring.Registry
}

// NewRunner creates a Runner. c may be nil to disable caching.
func NewRunner(proc Processor, c cache.Cache, opts Options) *Runner {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = def.Retry
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = def.ProgressEvery
	}
	if opts.CacheDriver == "" {
		opts.CacheDriver = def.CacheDriver
	}
	return &Runner{proc: proc, cache: c, opts: opts, metrics: monitoring.DefaultRegistry()}
}

// WithSink sets the consumer of successful bundles.
func (r *Runner) WithSink(s Sink) *Runner {
	r.sink = s
	return r
}

// WithMetrics records into reg instead of the default registry.
func (r *Runner) WithMetrics(reg *monitoring.Registry) *Runner {
	r.metrics = reg
	return r
}

// CacheKey is the cache key of a place under the given options. Every
// option that changes the bundle is part of the key.
func CacheKey(place string, opts access.Options) string {
	fields := append([]string(nil), opts.DemographicFields...)
	sort.Strings(fields)
	return cache.Key("access.run", place,
		opts.RadiusM, opts.BufferM, opts.GroceryTier,
		opts.PageRank.DampingFactor, opts.PageRank.MaxIterations, opts.PageRank.Tolerance,
		opts.Betweenness.Cutoff, string(opts.Betweenness.Mode),
		strings.Join(fields, ","),
		opts.Network.Filter, opts.Network.ConsolidateTolerance, opts.Network.KeepDeadEnds,
		fmt.Sprint(opts.Network.Speeds),
	)
}

// Run processes every place and returns the aggregate summary. It returns
// an error only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, places []string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.New(), Errors: make(map[string]string)}
	log := zap.L().With(zap.String("run_id", sum.RunID.String()))
	log.Info("batch started",
		zap.Int("places", len(places)),
		zap.Int("concurrency", r.opts.Concurrency),
	)

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, place := range places {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			b, hit, err := r.process(gctx, sum.RunID, place)

			mu.Lock()
			defer mu.Unlock()
			done++
			switch {
			case err != nil:
				sum.Failed = append(sum.Failed, place)
				sum.Errors[place] = err.Error()
			default:
				sum.Successful = append(sum.Successful, place)
				if b.Empty() {
					sum.Empty = append(sum.Empty, place)
				}
				if hit {
					sum.CacheHits++
				}
			}
			if done%r.opts.ProgressEvery == 0 {
				log.Info("batch progress",
					zap.Int("processed", done),
					zap.Int("total", len(places)),
					zap.Int("successful", len(sum.Successful)),
					zap.Int("failed", len(sum.Failed)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(sum.Successful)
	sort.Strings(sum.Failed)
	sort.Strings(sum.Empty)
	sum.Elapsed = time.Since(start)

	log.Info("batch complete",
		zap.Int("successful", len(sum.Successful)),
		zap.Int("failed", len(sum.Failed)),
		zap.Int("cache_hits", sum.CacheHits),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "batch: cancelled")
	}
	return sum, nil
}

// Process runs a single place through the cache, retry and sink.
func (r *Runner) Process(ctx context.Context, place string) (*access.Bundle, error) {
	b, _, err := r.process(ctx, uuid.New(), place)
	return b, err
}

func (r *Runner) process(ctx context.Context, runID uuid.UUID, place string) (*access.Bundle, bool, error) {
	log := zap.L().With(zap.String("place", place))
	start := time.Now()

	retry := r.opts.Retry
	retry.ShouldRetry = retryable
	retry.OnRetry = func(attempt int, err error) {
		r.metrics.RecordRetry("place")
		log.Warn("place failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", retry.Backoff(attempt-1)),
			zap.Error(err),
		)
	}

	var computed *access.Bundle
	data, hit, err := cache.GetOrCompute(ctx, r.cache, CacheKey(place, r.proc.Options()), func(ctx context.Context) ([]byte, error) {
		b, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*access.Bundle, error) {
			return r.proc.Run(ctx, place)
		})
		if err != nil {
			return nil, err
		}
		computed = b
		return access.EncodeBundle(b)
	})
	if r.cache != nil {
		r.metrics.RecordCacheLookup(r.opts.CacheDriver, hit)
	}

	var b *access.Bundle
	switch {
	case computed != nil:
		b = computed
		if err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	case err != nil:
		r.metrics.RecordPlace("failed", time.Since(start))
		log.Error("place failed", zap.Error(err))
		return nil, false, err
	default:
		b, err = access.DecodeBundle(data)
		if err != nil {
			r.metrics.RecordPlace("failed", time.Since(start))
			return nil, hit, eris.Wrapf(err, "batch: decode cached %q", place)
		}
	}

	if r.sink != nil {
		if err := r.sink(ctx, runID, b); err != nil {
			r.metrics.RecordPlace("failed", time.Since(start))
			log.Error("sink failed", zap.Error(err))
			return nil, hit, eris.Wrapf(err, "batch: sink %q", place)
		}
	}

	status := "success"
	if b.Empty() {
		status = "empty"
	}
	r.metrics.RecordPlace(status, time.Since(start))
	log.Info("place complete",
		zap.Bool("cached", hit),
		zap.Int("nodes", b.Nodes.Len()),
		zap.Int("edges", b.Edges.Len()),
		zap.Strings("warnings", b.Warnings),
		zap.Duration("elapsed", time.Since(start)),
	)
	return b, hit, nil
}

// retryable retries external failures and transient errors. Invalid input,
// missing projections and integrity violations fail immediately.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindExternalRetrieval:
		return true
	case apperr.KindInvalidInput, apperr.KindDataIntegrity, apperr.KindMissingProjection, apperr.KindEmptyResult:
		return false
	}
	return resilience.IsTransient(err)
}
