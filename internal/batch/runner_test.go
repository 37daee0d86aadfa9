package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/cache"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/graph"
	"github.com/sells-group/food-access-cli/internal/monitoring"
	"github.com/sells-group/food-access-cli/internal/poi"
	"github.com/sells-group/food-access-cli/internal/resilience"
)

type fakeProcessor struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]func(attempt int) (*access.Bundle, error)
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{calls: map[string]int{}, results: map[string]func(int) (*access.Bundle, error){}}
}

func (f *fakeProcessor) Run(_ context.Context, place string) (*access.Bundle, error) {
	f.mu.Lock()
	f.calls[place]++
	attempt := f.calls[place]
	fn := f.results[place]
	f.mu.Unlock()
	if fn == nil {
		return bundleFor(place), nil
	}
	return fn(attempt)
}

func (f *fakeProcessor) Options() access.Options { return access.DefaultOptions() }

func (f *fakeProcessor) count(place string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[place]
}

func bundleFor(place string) *access.Bundle {
	return &access.Bundle{
		Place:   place,
		RadiusM: 10000,
		Nodes: access.NodeTable{CRS: geometry.WGS84, Rows: []access.NodeRecord{
			{ID: 1, X: -73.75, Y: 42.65, NearestGroceryTime: 0, Grocery: true},
			{ID: 2, X: -73.74, Y: 42.65, NearestGroceryTime: 30},
		}},
		Edges: access.EdgeTable{CRS: geometry.WGS84, Columns: []string{}, Rows: []access.EdgeRecord{
			{U: 1, V: 2, Length: 100, SpeedKPH: 30, TravelTime: 12, Geometry: orb.LineString{{-73.75, 42.65}, {-73.74, 42.65}}},
		}},
	}
}

func testOptions() Options {
	return Options{
		Concurrency: 3,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Schedule:       resilience.Linear,
		},
		ProgressEvery: 2,
		CacheDriver:   "memory",
	}
}

func TestRun_CollectsOutcomes(t *testing.T) {
	proc := newFakeProcessor()
	proc.results["Bad, NY"] = func(int) (*access.Bundle, error) {
		return nil, apperr.InvalidInput("geometry.region", "non-positive radius")
	}
	proc.results["Flaky, NY"] = func(attempt int) (*access.Bundle, error) {
		if attempt < 3 {
			return nil, apperr.Wrap(apperr.KindExternalRetrieval, "overpass.roads", errors.New("gateway timeout"))
		}
		return bundleFor("Flaky, NY"), nil
	}
	proc.results["Empty, NY"] = func(int) (*access.Bundle, error) {
		return &access.Bundle{Place: "Empty, NY", Warnings: []string{"no qualifying roads in query scope"}}, nil
	}

	reg := monitoring.NewRegistry()
	r := NewRunner(proc, nil, testOptions()).WithMetrics(reg)
	sum, err := r.Run(context.Background(), []string{"Albany, NY", "Bad, NY", "Flaky, NY", "Empty, NY"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sum.RunID)
	assert.Equal(t, []string{"Albany, NY", "Empty, NY", "Flaky, NY"}, sum.Successful)
	assert.Equal(t, []string{"Bad, NY"}, sum.Failed)
	assert.Equal(t, []string{"Empty, NY"}, sum.Empty)
	assert.Contains(t, sum.Errors["Bad, NY"], "non-positive radius")
	assert.Equal(t, 4, sum.Total())

	assert.Equal(t, 1, proc.count("Bad, NY"), "invalid input is not retried")
	assert.Equal(t, 3, proc.count("Flaky, NY"))
}

func TestRun_RetriesExhausted(t *testing.T) {
	proc := newFakeProcessor()
	proc.results["Down, NY"] = func(int) (*access.Bundle, error) {
		return nil, resilience.NewTransientError(errors.New("service unavailable"), 503)
	}

	r := NewRunner(proc, nil, testOptions()).WithMetrics(monitoring.NewRegistry())
	sum, err := r.Run(context.Background(), []string{"Down, NY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Down, NY"}, sum.Failed)
	assert.Empty(t, sum.Successful)
	assert.Equal(t, 3, proc.count("Down, NY"))
}

func TestRun_UsesCache(t *testing.T) {
	proc := newFakeProcessor()
	c := cache.NewMemory(16, 0)
	r := NewRunner(proc, c, testOptions()).WithMetrics(monitoring.NewRegistry())

	places := []string{"Albany, NY", "Troy, NY"}
	first, err := r.Run(context.Background(), places)
	require.NoError(t, err)
	assert.Equal(t, 0, first.CacheHits)

	second, err := r.Run(context.Background(), places)
	require.NoError(t, err)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, places, second.Successful)
	assert.Equal(t, 1, proc.count("Albany, NY"))
	assert.Equal(t, 1, proc.count("Troy, NY"))
}

func TestRun_FailuresAreNotCached(t *testing.T) {
	proc := newFakeProcessor()
	proc.results["Bad, NY"] = func(int) (*access.Bundle, error) {
		return nil, apperr.New(apperr.KindDataIntegrity, "access.join", "duplicate node 7")
	}
	c := cache.NewMemory(16, 0)
	r := NewRunner(proc, c, testOptions()).WithMetrics(monitoring.NewRegistry())

	for i := 0; i < 2; i++ {
		sum, err := r.Run(context.Background(), []string{"Bad, NY"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Bad, NY"}, sum.Failed)
	}
	assert.Equal(t, 2, proc.count("Bad, NY"))
}

func TestRun_SinkReceivesBundles(t *testing.T) {
	proc := newFakeProcessor()
	var mu sync.Mutex
	var got []string
	var runIDs []uuid.UUID
	r := NewRunner(proc, nil, testOptions()).WithMetrics(monitoring.NewRegistry()).
		WithSink(func(_ context.Context, runID uuid.UUID, b *access.Bundle) error {
			mu.Lock()
			defer mu.Unlock()
			if b.Place == "Reject, NY" {
				return errors.New("export refused")
			}
			got = append(got, b.Place)
			runIDs = append(runIDs, runID)
			return nil
		})

	sum, err := r.Run(context.Background(), []string{"Albany, NY", "Reject, NY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Albany, NY"}, got)
	assert.Equal(t, []uuid.UUID{sum.RunID}, runIDs)
	assert.Equal(t, []string{"Reject, NY"}, sum.Failed)
	assert.Contains(t, sum.Errors["Reject, NY"], "export refused")
}

func TestRun_Cancelled(t *testing.T) {
	proc := newFakeProcessor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(proc, nil, testOptions()).WithMetrics(monitoring.NewRegistry())
	_, err := r.Run(ctx, []string{"Albany, NY"})
	require.Error(t, err)
	assert.Equal(t, 0, proc.count("Albany, NY"))
}

func TestProcess_Single(t *testing.T) {
	proc := newFakeProcessor()
	r := NewRunner(proc, nil, testOptions()).WithMetrics(monitoring.NewRegistry())
	b, err := r.Process(context.Background(), "Albany, NY")
	require.NoError(t, err)
	assert.Equal(t, "Albany, NY", b.Place)
	assert.Equal(t, 2, b.Nodes.Len())
}

func TestCacheKey_DependsOnOptions(t *testing.T) {
	opts := access.DefaultOptions()
	k1 := CacheKey("Albany, NY", opts)
	assert.Equal(t, k1, CacheKey("  albany,   NY ", opts))
	opts.RadiusM = 5000
	assert.NotEqual(t, k1, CacheKey("Albany, NY", opts))
}

func TestCacheKey_CoversResultOptions(t *testing.T) {
	base := CacheKey("Albany, NY", access.DefaultOptions())

	tests := []struct {
		name   string
		mutate func(*access.Options)
	}{
		{"buffer", func(o *access.Options) { o.BufferM = 1000 }},
		{"grocery tier", func(o *access.Options) { o.GroceryTier = poi.Secondary }},
		{"betweenness cutoff", func(o *access.Options) { o.Betweenness.Cutoff = 50 }},
		{"betweenness mode", func(o *access.Options) { o.Betweenness.Mode = graph.CutoffCost }},
		{"pagerank damping", func(o *access.Options) { o.PageRank.DampingFactor = 0.9 }},
		{"demographic fields", func(o *access.Options) { o.DemographicFields = []string{"density", "RPL_THEMES"} }},
		{"consolidate tolerance", func(o *access.Options) { o.Network.ConsolidateTolerance = 25 }},
		{"keep dead ends", func(o *access.Options) { o.Network.KeepDeadEnds = true }},
		{"speed overrides", func(o *access.Options) { o.Network.Speeds = map[string]float64{"residential": 25} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := access.DefaultOptions()
			tt.mutate(&opts)
			assert.NotEqual(t, base, CacheKey("Albany, NY", opts))
		})
	}
}

func TestCacheKey_DemographicFieldOrder(t *testing.T) {
	a := access.DefaultOptions()
	a.DemographicFields = []string{"density", "RPL_THEMES"}
	b := access.DefaultOptions()
	b.DemographicFields = []string{"RPL_THEMES", "density"}
	assert.Equal(t, CacheKey("Albany, NY", a), CacheKey("Albany, NY", b))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"external", apperr.Wrap(apperr.KindExternalRetrieval, "op", errors.New("refused")), true},
		{"transient", resilience.NewTransientError(errors.New("x"), 502), true},
		{"empty", apperr.EmptyResult("op", "none"), false},
		{"integrity", apperr.DataIntegrity("op", "dup"), false},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, opts.Retry.Backoff(0))
	assert.Equal(t, 2*time.Minute, opts.Retry.Backoff(1))
	assert.Equal(t, 5, opts.ProgressEvery)
}
