package geocode

import (
	"context"
	"errors"
	"io"
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

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		WithBaseURL(srv.URL),
		WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RequestsPerSecond: 1000,
			MaxRetries:        1,
			Backoff:           resilience.RetryConfig{InitialBackoff: time.Millisecond},
		})),
	)
}

func TestGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Albany, NY", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Empty(t, r.URL.Query().Get("polygon_geojson"))
		_, _ = io.WriteString(w, `[{"lat":"42.6511674","lon":"-73.754968","display_name":"Albany, New York","osm_type":"relation","osm_id":158217}]`)
	})

	res, err := c.Geocode(context.Background(), " Albany, NY ")
	require.NoError(t, err)
	assert.InDelta(t, 42.6511674, res.Latitude, 1e-9)
	assert.InDelta(t, -73.754968, res.Longitude, 1e-9)
	assert.Equal(t, orb.Point{-73.754968, 42.6511674}, res.Point())
	assert.Equal(t, int64(158217), res.OSMID)
	assert.Nil(t, res.Boundary)
}

func TestGeocodeRegion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("polygon_geojson"))
		_, _ = io.WriteString(w, `[{"lat":"42.65","lon":"-73.75","geojson":{"type":"Polygon","coordinates":[[[-73.8,42.6],[-73.7,42.6],[-73.7,42.7],[-73.8,42.6]]]}}]`)
	})

	g, err := c.GeocodeRegion(context.Background(), "Albany, NY")
	require.NoError(t, err)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly[0], 4)
}

func TestGeocodeRegion_PointOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"lat":"42.65","lon":"-73.75","geojson":{"type":"Point","coordinates":[-73.75,42.65]}}]`)
	})
	_, err := c.GeocodeRegion(context.Background(), "Some Corner")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestGeocode_NotFoundIsRecoverable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	_, err := c.Geocode(context.Background(), "Nowhere, ZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlaceNotFound)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.False(t, resilience.IsTransient(err))
}

func TestGeocode_EmptyPlace(t *testing.T) {
	c := NewClient()
	_, err := c.Geocode(context.Background(), "  ")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestGeocode_ServiceDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Geocode(context.Background(), "Albany, NY")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExternalRetrieval))
}
