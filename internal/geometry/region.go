package geometry

import (
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// CircleSegments is the number of vertices used to approximate a circle
// (16 per quadrant).
const CircleSegments = 64

// CircularRegion buffers center by radiusM meters. The buffer is built in a
// local azimuthal equidistant projection so the region stays circular on the
// ground at any latitude, then returned in geodetic coordinates.
// A nil center is an invalid input.
func CircularRegion(center *orb.Point, radiusM float64) (orb.Polygon, error) {
	if center == nil {
		return nil, apperr.InvalidInput("geometry.circular_region", "a lon/lat pair or a point is required")
	}
	return CircularRegionLonLat(center[0], center[1], radiusM)
}

// CircularRegionLonLat is CircularRegion for a bare lon/lat pair.
func CircularRegionLonLat(lon, lat, radiusM float64) (orb.Polygon, error) {
	if err := checkLonLat("geometry.circular_region", lon, lat); err != nil {
		return nil, err
	}
	if !(radiusM > 0) || math.IsInf(radiusM, 0) {
		return nil, apperr.InvalidInput("geometry.circular_region", "radius must be a positive number of meters")
	}
	local, err := NewAzimuthalEquidistant(lon, lat)
	if err != nil {
		return nil, err
	}

	ring := make(orb.Ring, 0, CircleSegments+1)
	for i := 0; i < CircleSegments; i++ {
		a := 2 * math.Pi * float64(i) / CircleSegments
		glon, glat, err := local.Inverse(radiusM*math.Cos(a), radiusM*math.Sin(a))
		if err != nil {
			return nil, err
		}
		ring = append(ring, orb.Point{glon, glat})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}, nil
}

// FallbackPoint returns the planar centroid of a polygon. Used when no
// drivable point can be found inside a boundary.
func FallbackPoint(g orb.Geometry) (orb.Point, error) {
	if g == nil {
		return orb.Point{}, apperr.InvalidInput("geometry.fallback_point", "nil geometry")
	}
	c, _ := planar.CentroidArea(g)
	return c, nil
}

// EnclosingCircle returns the minimum bounding circle of a geodetic
// geometry. The circle is solved in a metric projection centred on the
// geometry's bounds and returned as a geodetic polygon together with its
// centre and radius in meters.
func EnclosingCircle(g orb.Geometry) (orb.Polygon, orb.Point, float64, error) {
	if g == nil {
		return nil, orb.Point{}, 0, apperr.InvalidInput("geometry.enclosing_circle", "nil geometry")
	}
	b := g.Bound()
	mid := b.Center()
	local, err := NewAzimuthalEquidistant(mid[0], mid[1])
	if err != nil {
		return nil, orb.Point{}, 0, err
	}
	pg, err := Transform(g, WGS84, local)
	if err != nil {
		return nil, orb.Point{}, 0, err
	}

	pts := collectPoints(pg)
	if len(pts) == 0 {
		return nil, orb.Point{}, 0, apperr.InvalidInput("geometry.enclosing_circle", "geometry has no vertices")
	}
	cx, cy, r := minCircle(pts)

	clon, clat, err := local.Inverse(cx, cy)
	if err != nil {
		return nil, orb.Point{}, 0, err
	}
	if r <= 0 {
		r = 1
	}
	poly, err := CircularRegionLonLat(clon, clat, r)
	if err != nil {
		return nil, orb.Point{}, 0, err
	}
	return poly, orb.Point{clon, clat}, r, nil
}

func collectPoints(g orb.Geometry) []orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return []orb.Point{v}
	case orb.MultiPoint:
		return v
	case orb.LineString:
		return v
	case orb.Ring:
		return v
	case orb.Polygon:
		var out []orb.Point
		for _, r := range v {
			out = append(out, r...)
		}
		return out
	case orb.MultiLineString:
		var out []orb.Point
		for _, ls := range v {
			out = append(out, ls...)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.Point
		for _, p := range v {
			out = append(out, collectPoints(p)...)
		}
		return out
	}
	return nil
}

// minCircle is the incremental Welzl construction over a shuffled copy of
// pts; expected linear time.
func minCircle(input []orb.Point) (x, y, r float64) {
	pts := append([]orb.Point(nil), input...)
	rng := rand.New(rand.NewPCG(1, 2))
	rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })

	cx, cy, cr := pts[0][0], pts[0][1], 0.0
	in := func(p orb.Point) bool {
		return math.Hypot(p[0]-cx, p[1]-cy) <= cr*(1+1e-12)+1e-9
	}
	for i := 1; i < len(pts); i++ {
		if in(pts[i]) {
			continue
		}
		cx, cy, cr = pts[i][0], pts[i][1], 0
		for j := 0; j < i; j++ {
			if in(pts[j]) {
				continue
			}
			cx, cy = (pts[i][0]+pts[j][0])/2, (pts[i][1]+pts[j][1])/2
			cr = math.Hypot(pts[i][0]-cx, pts[i][1]-cy)
			for k := 0; k < j; k++ {
				if in(pts[k]) {
					continue
				}
				cx, cy, cr = circumcircle(pts[i], pts[j], pts[k])
			}
		}
	}
	return cx, cy, cr
}

func circumcircle(a, b, c orb.Point) (float64, float64, float64) {
	bx, by := b[0]-a[0], b[1]-a[1]
	cx, cy := c[0]-a[0], c[1]-a[1]
	d := 2 * (bx*cy - by*cx)
	if math.Abs(d) < 1e-12 {
		// Collinear: the circle spans the two farthest points.
		pairs := [][2]orb.Point{{a, b}, {a, c}, {b, c}}
		best := pairs[0]
		for _, p := range pairs[1:] {
			if planar.Distance(p[0], p[1]) > planar.Distance(best[0], best[1]) {
				best = p
			}
		}
		mx, my := (best[0][0]+best[1][0])/2, (best[0][1]+best[1][1])/2
		return mx, my, planar.Distance(best[0], best[1]) / 2
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	return ux + a[0], uy + a[1], math.Hypot(ux, uy)
}
