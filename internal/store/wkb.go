package store

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID of every geometry column.
const SRID = 4326

// encodePoint converts a lon/lat point to EWKB with SRID 4326.
func encodePoint(p orb.Point) ([]byte, error) {
	return marshal(geom.NewPointFlat(geom.XY, []float64{p[0], p[1]}).SetSRID(SRID))
}

// encodeLineString converts a lon/lat linestring to EWKB. Linestrings with
// fewer than two vertices encode as nil (NULL).
func encodeLineString(ls orb.LineString) ([]byte, error) {
	if len(ls) < 2 {
		return nil, nil
	}
	return marshal(geom.NewLineStringFlat(geom.XY, flatCoords(ls)).SetSRID(SRID))
}

// encodePolygon converts a lon/lat polygon to EWKB. Empty polygons encode
// as nil.
func encodePolygon(p orb.Polygon) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	poly := geom.NewPolygon(geom.XY).SetSRID(SRID)
	for i, r := range p {
		if len(r) < 4 {
			return nil, eris.Errorf("store: ring %d has %d vertices", i, len(r))
		}
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(r))); err != nil {
			return nil, eris.Wrapf(err, "store: push ring %d", i)
		}
	}
	return marshal(poly)
}

func marshal(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode WKB")
	}
	return data, nil
}

func flatCoords(pts []orb.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
