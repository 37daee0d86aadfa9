package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/batch"
	"github.com/sells-group/food-access-cli/internal/cache"
	"github.com/sells-group/food-access-cli/internal/config"
	"github.com/sells-group/food-access-cli/internal/fetcher"
	"github.com/sells-group/food-access-cli/internal/graph"
	"github.com/sells-group/food-access-cli/internal/monitoring"
	"github.com/sells-group/food-access-cli/internal/network"
	"github.com/sells-group/food-access-cli/internal/overpass"
	"github.com/sells-group/food-access-cli/internal/poi"
	"github.com/sells-group/food-access-cli/internal/resilience"
	"github.com/sells-group/food-access-cli/internal/svi"
	"github.com/sells-group/food-access-cli/pkg/geocode"
)

// pipelineEnv holds the collaborators shared by the run, batch, serve and
// export commands.
type pipelineEnv struct {
	Pipeline *access.Pipeline
	Cache    cache.Cache // nil when the cache driver is "none"
	Runner   *batch.Runner
	Metrics  *monitoring.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		if err := pe.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
}

// accessOptions converts the access section of the config.
func accessOptions(c *config.Config) (access.Options, error) {
	opts := access.DefaultOptions()
	opts.RadiusM = c.Access.RadiusM
	opts.BufferM = c.Access.BufferM

	tier, err := poi.ParseTier(c.Access.GroceryTier)
	if err != nil {
		return access.Options{}, eris.Wrap(err, "access options")
	}
	opts.GroceryTier = tier

	mode, err := graph.ParseCutoffMode(c.Access.BetweennessMode)
	if err != nil {
		return access.Options{}, eris.Wrap(err, "access options")
	}
	opts.Betweenness = graph.BetweennessOptions{Cutoff: c.Access.BetweennessCutoff, Mode: mode}
	if c.Access.PageRankDamping > 0 {
		opts.PageRank.DampingFactor = c.Access.PageRankDamping
	}
	if len(c.SVI.Fields) > 0 {
		opts.DemographicFields = c.SVI.Fields
	}
	opts.Network = network.Options{
		Filter:               overpass.DriveFilter,
		ConsolidateTolerance: c.Access.ConsolidateTolerance,
		KeepDeadEnds:         c.Access.KeepDeadEnds,
	}
	return opts, nil
}

// batchOptions converts the batch section of the config.
func batchOptions(c *config.Config) batch.Options {
	opts := batch.DefaultOptions()
	opts.Concurrency = c.Batch.Concurrency
	opts.ProgressEvery = c.Batch.ProgressEvery
	opts.CacheDriver = c.Cache.Driver
	if c.Batch.RetryAttempts > 0 {
		opts.Retry.MaxAttempts = c.Batch.RetryAttempts
	}
	if c.Batch.RetryDelaySecs >= 0 {
		opts.Retry.InitialBackoff = time.Duration(c.Batch.RetryDelaySecs) * time.Second
	}
	return opts
}

// cacheOptions converts the cache section of the config.
func cacheOptions(c *config.Config) cache.Options {
	return cache.Options{
		Driver:     c.Cache.Driver,
		Path:       c.Cache.Path,
		RedisURL:   c.Cache.RedisURL,
		TTL:        c.Cache.TTL(),
		MaxEntries: c.Cache.MaxEntries,
		Prefix:     c.Cache.Prefix,
	}
}

// newOverpass builds the Overpass client with its own rate limit and
// circuit breaker.
func newOverpass(c *config.Config) *overpass.Client {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "overpass"})
	return overpass.NewClient(overpass.Options{
		Endpoint: c.Overpass.BaseURL,
		Timeout:  time.Duration(c.Overpass.TimeoutSecs) * time.Second,
		Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         c.Overpass.UserAgent,
			Timeout:           time.Duration(c.Overpass.TimeoutSecs+30) * time.Second,
			MaxRetries:        c.Overpass.MaxRetries,
			RequestsPerSecond: c.Overpass.RPS,
			Breaker:           breaker,
		}),
	})
}

// newGeocoder builds the Nominatim client.
func newGeocoder(c *config.Config) geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(c.Nominatim.BaseURL),
		geocode.WithUserAgent(c.Nominatim.UserAgent),
		geocode.WithRateLimit(c.Nominatim.RPS),
	)
}

// initPipeline validates the config for mode, opens the cache and builds
// the pipeline and batch runner. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	opts, err := accessOptions(cfg)
	if err != nil {
		return nil, err
	}

	taxonomy := poi.DefaultTaxonomy()
	if cfg.TaxonomyPath != "" {
		taxonomy, err = poi.LoadTaxonomy(cfg.TaxonomyPath)
		if err != nil {
			return nil, eris.Wrap(err, "load taxonomy")
		}
		zap.L().Info("loaded poi taxonomy", zap.String("path", cfg.TaxonomyPath))
	}

	roads := newOverpass(cfg)
	geocoder := newGeocoder(cfg)

	builder := network.NewBuilder(roads, opts.Network)

	var demographics access.DemographicSource
	if cfg.SVI.Path != "" {
		demographics = svi.NewReader(svi.Options{Path: cfg.SVI.Path})
	} else {
		zap.L().Warn("svi.path not set, demographic fields will be missing")
	}

	metrics := monitoring.DefaultRegistry()
	pipeline := access.NewPipeline(
		geocoder,
		poi.NewFetcher(roads, geocoder, taxonomy),
		builder,
		demographics,
		opts,
	).WithMetrics(metrics)

	c, err := cache.Open(ctx, cacheOptions(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}

	runner := batch.NewRunner(pipeline, c, batchOptions(cfg)).WithMetrics(metrics)

	return &pipelineEnv{
		Pipeline: pipeline,
		Cache:    c,
		Runner:   runner,
		Metrics:  metrics,
	}, nil
}
