package geometry

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

func TestCentroids_MissingProjection(t *testing.T) {
	_, err := Centroids([]orb.Geometry{orb.Point{1, 1}}, nil, ConusAlbers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMissingProjection))
}

func TestCentroids_PolygonAndPoint(t *testing.T) {
	store := orb.Polygon{{{-97.001, 30.0}, {-96.999, 30.0}, {-96.999, 30.002}, {-97.001, 30.002}, {-97.001, 30.0}}}
	pt := orb.Point{-96.5, 31}

	got, err := Centroids([]orb.Geometry{store, pt}, WGS84, ConusAlbers)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, -97.0, got[0][0], 1e-5)
	assert.InDelta(t, 30.001, got[0][1], 1e-5)
	assert.Equal(t, pt, got[1])
}
