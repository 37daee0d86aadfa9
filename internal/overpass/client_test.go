package overpass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/fetcher"
	"github.com/sells-group/food-access-cli/internal/resilience"
)

var square = orb.Polygon{{{-73.8, 42.6}, {-73.7, 42.6}, {-73.7, 42.7}, {-73.8, 42.7}, {-73.8, 42.6}}}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		Endpoint: srv.URL,
		Timeout:  30 * time.Second,
		Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			MaxRetries:        2,
			RequestsPerSecond: 1000,
			Backoff:           resilience.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		}),
	})
}

func TestFeatures_QueryAndDecode(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query = r.PostForm.Get("data")
		w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":42.65,"lon":-73.75,"tags":{"shop":"supermarket"}},
			{"type":"way","id":2,"tags":{"shop":"supermarket"},"geometry":[
				{"lat":42.61,"lon":-73.79},{"lat":42.61,"lon":-73.78},{"lat":42.62,"lon":-73.78},{"lat":42.61,"lon":-73.79}]}
		]}`))
	})

	els, err := c.Features(context.Background(), square, []Filter{
		{Key: "shop", Values: []string{"supermarket"}},
		{Key: "amenity", Values: []string{"fuel", "fast_food"}},
	})
	require.NoError(t, err)
	require.Len(t, els, 2)

	assert.Contains(t, query, "[out:json][timeout:30];")
	assert.Contains(t, query, `nwr["shop"="supermarket"](poly:"42.6000000 -73.8000000 `)
	assert.Contains(t, query, `nwr["amenity"~"^(fast_food|fuel)$"]`)
	assert.Contains(t, query, "out geom;")

	g, ok := els[0].Shape()
	require.True(t, ok)
	assert.Equal(t, orb.Point{-73.75, 42.65}, g)
	g, ok = els[1].Shape()
	require.True(t, ok)
	assert.IsType(t, orb.Polygon{}, g)
}

func TestFeatures_EmptyIsEmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	})
	_, err := c.Features(context.Background(), square, []Filter{{Key: "shop", Values: []string{"supermarket"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrEmptyResult))
	assert.False(t, resilience.IsTransient(err))
}

func TestFeatures_NoFilters(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.Features(context.Background(), square, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestFeatures_ServerTimeoutRemark(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[],"remark":"runtime error: Query timed out in \"query\" at line 3 after 181 seconds."}`))
	})
	_, err := c.Features(context.Background(), square, []Filter{{Key: "shop"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExternalRetrieval))
	assert.True(t, resilience.IsTransient(err))
}

func TestFeatures_UpstreamDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})
	_, err := c.Features(context.Background(), square, []Filter{{Key: "shop"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExternalRetrieval))
}

func TestRoads(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query = r.PostForm.Get("data")
		w.Write([]byte(`{"elements":[
			{"type":"node","id":10,"lat":42.6,"lon":-73.8},
			{"type":"node","id":11,"lat":42.61,"lon":-73.8},
			{"type":"way","id":100,"nodes":[10,11],"tags":{"highway":"residential"}}
		]}`))
	})

	roads, err := c.Roads(context.Background(), square, "")
	require.NoError(t, err)
	assert.Len(t, roads.Nodes, 2)
	require.Len(t, roads.Ways, 1)
	assert.Equal(t, []int64{10, 11}, roads.Ways[0].Nodes)
	assert.Contains(t, query, `["highway"~"motorway|trunk|primary|secondary|tertiary|residential"]`)
	assert.Contains(t, query, ">;")
}

func TestRoads_NoWays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[{"type":"node","id":10,"lat":42.6,"lon":-73.8}]}`))
	})
	_, err := c.Roads(context.Background(), square, DriveFilter)
	assert.True(t, errors.Is(err, apperr.ErrEmptyResult))
}

func TestPolyFilter_RejectsOpenRing(t *testing.T) {
	_, err := polyFilter(orb.Polygon{{{0, 0}, {1, 1}}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestTagSelector(t *testing.T) {
	assert.Equal(t, `["shop"]`, tagSelector(Filter{Key: "shop"}))
	assert.Equal(t, `["shop"="convenience"]`, tagSelector(Filter{Key: "shop", Values: []string{"convenience"}}))
	assert.Equal(t, `["name"="Joe\"s"]`, tagSelector(Filter{Key: "name", Values: []string{`Joe"s`}}))
}

func TestElementShape_Relation(t *testing.T) {
	outer := []LatLon{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	inner := []LatLon{{2, 2}, {2, 3}, {3, 3}, {2, 2}}
	e := Element{Type: "relation", Members: []Member{
		{Type: "way", Role: "outer", Geometry: outer},
		{Type: "way", Role: "inner", Geometry: inner},
		{Type: "node", Role: "label"},
	}}
	g, ok := e.Shape()
	require.True(t, ok)
	poly, isPoly := g.(orb.Polygon)
	require.True(t, isPoly)
	assert.Len(t, poly, 2)

	_, ok = Element{Type: "relation"}.Shape()
	assert.False(t, ok)
	_, ok = Element{Type: "way", Geometry: []LatLon{{1, 1}}}.Shape()
	assert.False(t, ok)
}
