package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// Centroids reduces each geometry to its area-weighted centre. Geometries
// are projected from src into the metric work CRS, reduced there and
// projected back, so polygon centroids are not skewed by degree distortion.
// Points pass through unchanged. A nil src fails with a missing-projection
// error.
func Centroids(geoms []orb.Geometry, src, work CRS) ([]orb.Point, error) {
	if src == nil {
		return nil, apperr.New(apperr.KindMissingProjection, "geometry.centroids", "input collection has no CRS")
	}
	if work == nil {
		return nil, apperr.New(apperr.KindMissingProjection, "geometry.centroids", "no metric CRS supplied")
	}

	out := make([]orb.Point, len(geoms))
	for i, g := range geoms {
		if p, ok := g.(orb.Point); ok {
			out[i] = p
			continue
		}
		projected, err := Transform(g, src, work)
		if err != nil {
			return nil, err
		}
		c, _ := planar.CentroidArea(projected)
		back, err := TransformPoint(c, work, src)
		if err != nil {
			return nil, err
		}
		out[i] = back
	}
	return out, nil
}
