package svi

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// readGeoJSON returns the features whose bounding box overlaps bound.
// Numeric properties become fields; the sentinel and non-finite values are
// cleaned to NaN.
func (r *Reader) readGeoJSON(bound orb.Bound) ([]Record, error) {
	data, err := os.ReadFile(r.opts.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "svi: read %s", r.opts.Path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "svi: decode %s", r.opts.Path)
	}

	var records []Record
	for _, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		if len(mp) == 0 || !bound.Intersects(mp.Bound()) {
			continue
		}

		rec := Record{Geometry: mp, Fields: make(map[string]float64)}
		for name, raw := range f.Properties {
			if strings.EqualFold(name, r.opts.IDField) {
				rec.GEOID = propertyString(raw)
				continue
			}
			if !r.wanted(name) {
				continue
			}
			if v, ok := propertyFloat(raw); ok {
				rec.Fields[name] = v
			}
		}
		if rec.GEOID == "" && f.ID != nil {
			rec.GEOID = propertyString(f.ID)
		}
		records = append(records, rec)
	}
	return records, nil
}

func propertyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprint(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func propertyFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return clean(t), true
	case int:
		return clean(float64(t)), true
	case string:
		return parseValue(t)
	case nil:
		return math.NaN(), true
	default:
		return 0, false
	}
}

// intersects reports whether two multipolygons share any point. Containment
// is checked through vertices and boundary crossings through segment tests.
func intersects(a, b orb.MultiPolygon) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, p := range a {
		for _, ring := range p {
			for _, pt := range ring {
				if planar.MultiPolygonContains(b, pt) {
					return true
				}
			}
		}
	}
	for _, p := range b {
		for _, ring := range p {
			for _, pt := range ring {
				if planar.MultiPolygonContains(a, pt) {
					return true
				}
			}
		}
	}
	for _, pa := range a {
		for _, ra := range pa {
			for _, pb := range b {
				for _, rb := range pb {
					if ringsCross(ra, rb) {
						return true
					}
				}
			}
		}
	}
	return false
}

func ringsCross(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
