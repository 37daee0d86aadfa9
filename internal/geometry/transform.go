package geometry

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// TransformPoint converts p from one CRS to another.
func TransformPoint(p orb.Point, from, to CRS) (orb.Point, error) {
	if from == nil || to == nil {
		return orb.Point{}, apperr.New(apperr.KindMissingProjection, "geometry.transform", "source and target CRS are required")
	}
	if from.Name() == to.Name() {
		return p, nil
	}
	lon, lat, err := from.Inverse(p[0], p[1])
	if err != nil {
		return orb.Point{}, err
	}
	x, y, err := to.Forward(lon, lat)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

// Transform returns a copy of g expressed in the target CRS. The input is
// never modified.
func Transform(g orb.Geometry, from, to CRS) (orb.Geometry, error) {
	if from == nil || to == nil {
		return nil, apperr.New(apperr.KindMissingProjection, "geometry.transform", "source and target CRS are required")
	}
	switch v := g.(type) {
	case orb.Point:
		return TransformPoint(v, from, to)
	case orb.MultiPoint:
		pts, err := transformPoints(v, from, to)
		return orb.MultiPoint(pts), err
	case orb.LineString:
		pts, err := transformPoints(v, from, to)
		return orb.LineString(pts), err
	case orb.Ring:
		pts, err := transformPoints(v, from, to)
		return orb.Ring(pts), err
	case orb.Polygon:
		return TransformPolygon(v, from, to)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, 0, len(v))
		for _, ls := range v {
			pts, err := transformPoints(ls, from, to)
			if err != nil {
				return nil, err
			}
			out = append(out, pts)
		}
		return out, nil
	case orb.MultiPolygon:
		return TransformMultiPolygon(v, from, to)
	case nil:
		return nil, apperr.InvalidInput("geometry.transform", "nil geometry")
	default:
		return nil, eris.Errorf("geometry: unsupported geometry type %T", g)
	}
}

// TransformPolygon converts every ring of p.
func TransformPolygon(p orb.Polygon, from, to CRS) (orb.Polygon, error) {
	out := make(orb.Polygon, 0, len(p))
	for _, r := range p {
		pts, err := transformPoints(r, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, pts)
	}
	return out, nil
}

// TransformMultiPolygon converts every polygon of mp.
func TransformMultiPolygon(mp orb.MultiPolygon, from, to CRS) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, p := range mp {
		tp, err := TransformPolygon(p, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, nil
}

// TransformPoints converts a slice of points, returning a new slice.
func TransformPoints(pts []orb.Point, from, to CRS) ([]orb.Point, error) {
	if from == nil || to == nil {
		return nil, apperr.New(apperr.KindMissingProjection, "geometry.transform", "source and target CRS are required")
	}
	return transformPoints(pts, from, to)
}

func transformPoints(pts []orb.Point, from, to CRS) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		tp, err := TransformPoint(p, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = tp
	}
	return out, nil
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
