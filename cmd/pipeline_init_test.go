package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/batch"
	"github.com/sells-group/food-access-cli/internal/config"
	"github.com/sells-group/food-access-cli/internal/graph"
	"github.com/sells-group/food-access-cli/internal/overpass"
	"github.com/sells-group/food-access-cli/internal/poi"
)

// testConfig returns a config that passes validation for every mode except
// export, with an in-memory cache.
func testConfig() *config.Config {
	return &config.Config{
		Log:       config.LogConfig{Level: "error", Format: "console"},
		Overpass:  config.OverpassConfig{BaseURL: "http://127.0.0.1:1/api/interpreter", TimeoutSecs: 5, RPS: 10, MaxRetries: 1},
		Nominatim: config.NominatimConfig{BaseURL: "http://127.0.0.1:1", RPS: 10},
		Access: config.AccessConfig{
			RadiusM:              2000,
			BufferM:              500,
			GroceryTier:          "primary",
			BetweennessCutoff:    50,
			BetweennessMode:      "cost",
			PageRankDamping:      0.9,
			ConsolidateTolerance: 10,
		},
		Cache:      config.CacheConfig{Driver: "memory", MaxEntries: 8},
		Batch:      config.BatchConfig{Concurrency: 2, RetryAttempts: 2, RetryDelaySecs: 1, ProgressEvery: 5},
		Server:     config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Monitoring: config.MonitoringConfig{FailureRateThreshold: 0.5, MinPlaces: 1},
	}
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestAccessOptions(t *testing.T) {
	opts, err := accessOptions(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2000.0, opts.RadiusM)
	assert.Equal(t, 500.0, opts.BufferM)
	assert.Equal(t, poi.Primary, opts.GroceryTier)
	assert.Equal(t, graph.BetweennessOptions{Cutoff: 50, Mode: graph.CutoffCost}, opts.Betweenness)
	assert.Equal(t, 0.9, opts.PageRank.DampingFactor)
	assert.Equal(t, 100, opts.PageRank.MaxIterations)
	assert.Equal(t, 10.0, opts.Network.ConsolidateTolerance)
	assert.Equal(t, overpass.DriveFilter, opts.Network.Filter)
	assert.False(t, opts.Network.KeepDeadEnds)
}

func TestAccessOptions_NetworkChangesCacheKey(t *testing.T) {
	c := testConfig()
	a, err := accessOptions(c)
	require.NoError(t, err)
	c.Access.KeepDeadEnds = true
	b, err := accessOptions(c)
	require.NoError(t, err)
	assert.NotEqual(t, batch.CacheKey("Albany, NY", a), batch.CacheKey("Albany, NY", b))
}

func TestAccessOptions_DemographicFields(t *testing.T) {
	c := testConfig()
	c.SVI.Fields = []string{"density", "RPL_THEMES"}
	opts, err := accessOptions(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"density", "RPL_THEMES"}, opts.DemographicFields)
}

func TestAccessOptions_Invalid(t *testing.T) {
	c := testConfig()
	c.Access.GroceryTier = "boutique"
	_, err := accessOptions(c)
	assert.Error(t, err)

	c = testConfig()
	c.Access.BetweennessMode = "meters"
	_, err = accessOptions(c)
	assert.Error(t, err)
}

func TestBatchOptions(t *testing.T) {
	opts := batchOptions(testConfig())
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, 2, opts.Retry.MaxAttempts)
	assert.Equal(t, time.Second, opts.Retry.InitialBackoff)
	assert.Equal(t, "memory", opts.CacheDriver)
}

func TestCacheOptions(t *testing.T) {
	c := testConfig()
	c.Cache.TTLHours = 2
	c.Cache.Prefix = "fa:"
	opts := cacheOptions(c)
	assert.Equal(t, "memory", opts.Driver)
	assert.Equal(t, 2*time.Hour, opts.TTL)
	assert.Equal(t, 8, opts.MaxEntries)
	assert.Equal(t, "fa:", opts.Prefix)
}

func TestInitPipeline(t *testing.T) {
	withConfig(t, testConfig())

	env, err := initPipeline(context.Background(), "run")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Cache)
	assert.NotNil(t, env.Runner)
	assert.Equal(t, 2000.0, env.Pipeline.Options().RadiusM)
}

func TestInitPipeline_NoCache(t *testing.T) {
	c := testConfig()
	c.Cache.Driver = "none"
	withConfig(t, c)

	env, err := initPipeline(context.Background(), "batch")
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Cache)
}

func TestInitPipeline_ValidationFails(t *testing.T) {
	c := testConfig()
	c.Access.RadiusM = 0
	withConfig(t, c)

	_, err := initPipeline(context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radius_m")
}

func TestInitPipeline_MissingTaxonomy(t *testing.T) {
	c := testConfig()
	c.TaxonomyPath = "/nonexistent/taxonomy.yaml"
	withConfig(t, c)

	_, err := initPipeline(context.Background(), "run")
	assert.Error(t, err)
}

func TestApplyRegionFlags(t *testing.T) {
	withConfig(t, testConfig())

	applyRegionFlags(0, -1)
	assert.Equal(t, 2000.0, cfg.Access.RadiusM)
	assert.Equal(t, 500.0, cfg.Access.BufferM)

	applyRegionFlags(5000, 0)
	assert.Equal(t, 5000.0, cfg.Access.RadiusM)
	assert.Equal(t, 0.0, cfg.Access.BufferM)
}
