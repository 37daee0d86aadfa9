package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/batch"
	"github.com/sells-group/food-access-cli/internal/cache"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/monitoring"
)

func albany() *access.Bundle {
	return &access.Bundle{
		Place:     "Albany, NY",
		RadiusM:   10000,
		BufferM:   5000,
		CenterLat: 42.65,
		CenterLon: -73.75,
		Nodes: access.NodeTable{CRS: geometry.WGS84, Rows: []access.NodeRecord{
			{ID: 1, X: -73.75, Y: 42.65, Grocery: true},
			{ID: 2, X: -73.74, Y: 42.65, NearestGroceryTime: 30},
		}},
		Edges: access.EdgeTable{CRS: geometry.WGS84, Columns: []string{}, Rows: []access.EdgeRecord{
			{U: 1, V: 2, Length: 100, SpeedKPH: 30, TravelTime: 12, Geometry: orb.LineString{{-73.75, 42.65}, {-73.74, 42.65}}},
			{U: 2, V: 1, Length: 100, SpeedKPH: 30, TravelTime: 12, Geometry: orb.LineString{{-73.74, 42.65}, {-73.75, 42.65}}},
		}},
		Warnings: []string{"no demographic coverage in query scope"},
	}
}

func newTestServer(t *testing.T, options ...Option) (*httptest.Server, cache.Cache) {
	t.Helper()
	c := cache.NewMemory(8, 0)
	opts := access.DefaultOptions()
	data, err := access.EncodeBundle(albany())
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), batch.CacheKey("Albany, NY", opts), data))

	options = append([]Option{WithMetrics(monitoring.NewRegistry())}, options...)
	srv := httptest.NewServer(NewServer(c, opts, options...).Handler())
	t.Cleanup(srv.Close)
	return srv, c
}

func placeURL(srv *httptest.Server, place, suffix string) string {
	return srv.URL + "/places/" + url.PathEscape(place) + suffix
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSummary(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(placeURL(srv, "Albany, NY", ""))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.Equal(t, "Albany, NY", s.Place)
	assert.Equal(t, 2, s.Nodes)
	assert.Equal(t, 2, s.Edges)
	assert.Equal(t, 1, s.Groceries)
	assert.Equal(t, []string{"no demographic coverage in query scope"}, s.Warnings)
}

func TestSummary_CanonicalPlaceName(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(placeURL(srv, "albany,  ny", ""))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNodesAndEdges(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(placeURL(srv, "Albany, NY", "/nodes"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var nodes geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	assert.Len(t, nodes.Features, 2)

	resp2, err := http.Get(placeURL(srv, "Albany, NY", "/edges"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var edges geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&edges))
	require.Len(t, edges.Features, 2)
	_, ok := edges.Features[0].Geometry.(orb.LineString)
	assert.True(t, ok)
}

func TestUnknownPlace(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(placeURL(srv, "Troy, NY", "/nodes"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type fakeRunner struct {
	bundle *access.Bundle
	err    error
	places []string
}

func (f *fakeRunner) Process(_ context.Context, place string) (*access.Bundle, error) {
	f.places = append(f.places, place)
	return f.bundle, f.err
}

func TestRun(t *testing.T) {
	runner := &fakeRunner{bundle: albany()}
	srv, _ := newTestServer(t, WithRunner(runner))

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(`{"place":" Albany, NY "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Albany, NY"}, runner.places)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
		body   string
		want   int
	}{
		{"disabled", nil, `{"place":"Albany, NY"}`, http.StatusNotImplemented},
		{"bad body", &fakeRunner{}, `{`, http.StatusBadRequest},
		{"missing place", &fakeRunner{}, `{"place":"  "}`, http.StatusBadRequest},
		{"upstream", &fakeRunner{err: apperr.Wrap(apperr.KindExternalRetrieval, "overpass.roads", errors.New("timeout"))}, `{"place":"Albany, NY"}`, http.StatusBadGateway},
		{"invalid", &fakeRunner{err: apperr.InvalidInput("geometry.region", "bad radius")}, `{"place":"Albany, NY"}`, http.StatusBadRequest},
		{"no crs", &fakeRunner{err: apperr.New(apperr.KindMissingProjection, "geometry.centroids", "input collection has no CRS")}, `{"place":"Albany, NY"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var options []Option
			if tt.runner != nil {
				options = append(options, WithRunner(tt.runner))
			}
			srv, _ := newTestServer(t, options...)
			resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, WithAllowedOrigins("https://maps.example.org"))
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://maps.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
}
