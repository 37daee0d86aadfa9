// Package geometry provides coordinate reference systems and the region
// helpers the accessibility pipeline is built on. Every function takes its
// CRS explicitly; geometries never carry projection state.
package geometry

import (
	"math"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// CRS converts between geodetic longitude/latitude (degrees, WGS84/NAD83)
// and a planar coordinate system.
type CRS interface {
	// Name returns an identifier such as "EPSG:5070".
	Name() string
	// Forward projects geodetic lon/lat to planar x/y.
	Forward(lon, lat float64) (x, y float64, err error)
	// Inverse maps planar x/y back to geodetic lon/lat.
	Inverse(x, y float64) (lon, lat float64, err error)
}

// Well-known systems used by the pipeline.
var (
	// WGS84 is geodetic longitude/latitude (EPSG:4326).
	WGS84 CRS = geodetic{}
	// ConusAlbers is the NAD83 / Conus Albers equal-area projection (EPSG:5070).
	ConusAlbers CRS = newAlbers("EPSG:5070", 6378137.0, 298.257222101, 23, -96, 29.5, 45.5)
)

// Lookup returns the well-known CRS with the given name.
func Lookup(name string) (CRS, error) {
	switch name {
	case WGS84.Name():
		return WGS84, nil
	case ConusAlbers.Name():
		return ConusAlbers, nil
	default:
		return nil, apperr.New(apperr.KindMissingProjection, "geometry.lookup", "unknown CRS "+name)
	}
}

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// meanEarthRadius is the IUGG mean radius in meters.
	meanEarthRadius = 6371008.8
)

func checkLonLat(op string, lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return apperr.InvalidInput(op, "non-finite coordinate")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return apperr.InvalidInput(op, "coordinate outside geodetic range")
	}
	return nil
}

type geodetic struct{}

func (geodetic) Name() string { return "EPSG:4326" }

func (geodetic) Forward(lon, lat float64) (float64, float64, error) {
	if err := checkLonLat("geometry.wgs84", lon, lat); err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}

func (geodetic) Inverse(x, y float64) (float64, float64, error) {
	if err := checkLonLat("geometry.wgs84", x, y); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// albers is the ellipsoidal Albers equal-area conic (Snyder 1987, ch. 14).
type albers struct {
	name string
	a    float64
	e    float64
	e2   float64
	n    float64
	c    float64
	rho0 float64
	lon0 float64
}

func newAlbers(name string, a, invF, lat0, lon0, lat1, lat2 float64) *albers {
	f := 1 / invF
	e2 := 2*f - f*f
	p := &albers{name: name, a: a, e2: e2, e: math.Sqrt(e2), lon0: lon0 * deg2rad}

	phi0, phi1, phi2 := lat0*deg2rad, lat1*deg2rad, lat2*deg2rad
	m1, m2 := p.m(phi1), p.m(phi2)
	q0, q1, q2 := p.q(phi0), p.q(phi1), p.q(phi2)

	p.n = (m1*m1 - m2*m2) / (q2 - q1)
	p.c = m1*m1 + p.n*q1
	p.rho0 = a * math.Sqrt(p.c-p.n*q0) / p.n
	return p
}

func (p *albers) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e2*s*s)
}

func (p *albers) q(phi float64) float64 {
	s := math.Sin(phi)
	es := p.e * s
	return (1 - p.e2) * (s/(1-p.e2*s*s) - (1/(2*p.e))*math.Log((1-es)/(1+es)))
}

func (p *albers) Name() string { return p.name }

func (p *albers) Forward(lon, lat float64) (float64, float64, error) {
	if err := checkLonLat("geometry.albers", lon, lat); err != nil {
		return 0, 0, err
	}
	rho := p.a * math.Sqrt(p.c-p.n*p.q(lat*deg2rad)) / p.n
	theta := p.n * normalizeRad(lon*deg2rad-p.lon0)
	return rho * math.Sin(theta), p.rho0 - rho*math.Cos(theta), nil
}

func (p *albers) Inverse(x, y float64) (float64, float64, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, apperr.InvalidInput("geometry.albers", "non-finite coordinate")
	}
	dy := p.rho0 - y
	rho := math.Hypot(x, dy)
	theta := math.Atan2(x, dy)
	q := (p.c - (rho*p.n/p.a)*(rho*p.n/p.a)) / p.n
	if math.Abs(q) > 2 {
		return 0, 0, apperr.InvalidInput("geometry.albers", "coordinate outside projection domain")
	}

	phi := math.Asin(q / 2)
	for range 25 {
		s := math.Sin(phi)
		es := p.e * s
		den := 1 - p.e2*s*s
		dphi := den * den / (2 * math.Cos(phi)) *
			(q/(1-p.e2) - s/den + (1/(2*p.e))*math.Log((1-es)/(1+es)))
		phi += dphi
		if math.Abs(dphi) < 1e-12 {
			break
		}
	}

	lon := (p.lon0 + theta/p.n) * rad2deg
	return normalizeDeg(lon), phi * rad2deg, nil
}

// aeqd is a spherical azimuthal equidistant projection centred on a point.
// Distances from the centre are true, which makes it the right system for
// buffering a point by a metric radius.
type aeqd struct {
	lon0, lat0 float64
	sin0, cos0 float64
}

// NewAzimuthalEquidistant returns an azimuthal equidistant CRS centred on
// lon/lat, in meters.
func NewAzimuthalEquidistant(lon, lat float64) (CRS, error) {
	if err := checkLonLat("geometry.aeqd", lon, lat); err != nil {
		return nil, err
	}
	phi := lat * deg2rad
	return &aeqd{lon0: lon * deg2rad, lat0: phi, sin0: math.Sin(phi), cos0: math.Cos(phi)}, nil
}

func (p *aeqd) Name() string {
	return "AEQD(" + formatDeg(p.lon0*rad2deg) + "," + formatDeg(p.lat0*rad2deg) + ")"
}

func (p *aeqd) Forward(lon, lat float64) (float64, float64, error) {
	if err := checkLonLat("geometry.aeqd", lon, lat); err != nil {
		return 0, 0, err
	}
	phi := lat * deg2rad
	dl := normalizeRad(lon*deg2rad - p.lon0)
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	cosC := p.sin0*sinPhi + p.cos0*cosPhi*math.Cos(dl)
	cosC = math.Max(-1, math.Min(1, cosC))
	c := math.Acos(cosC)
	k := 1.0
	if c > 1e-12 {
		k = c / math.Sin(c)
	}
	x := meanEarthRadius * k * cosPhi * math.Sin(dl)
	y := meanEarthRadius * k * (p.cos0*sinPhi - p.sin0*cosPhi*math.Cos(dl))
	return x, y, nil
}

func (p *aeqd) Inverse(x, y float64) (float64, float64, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, apperr.InvalidInput("geometry.aeqd", "non-finite coordinate")
	}
	rho := math.Hypot(x, y)
	if rho < 1e-9 {
		return p.lon0 * rad2deg, p.lat0 * rad2deg, nil
	}
	c := rho / meanEarthRadius
	if c > math.Pi {
		return 0, 0, apperr.InvalidInput("geometry.aeqd", "coordinate beyond antipode")
	}
	sinC, cosC := math.Sin(c), math.Cos(c)
	phi := math.Asin(cosC*p.sin0 + y*sinC*p.cos0/rho)
	lam := p.lon0 + math.Atan2(x*sinC, rho*p.cos0*cosC-y*p.sin0*sinC)
	return normalizeDeg(lam * rad2deg), phi * rad2deg, nil
}

func normalizeRad(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func normalizeDeg(a float64) float64 {
	for a > 180 {
		a -= 360
	}
	for a < -180 {
		a += 360
	}
	return a
}
