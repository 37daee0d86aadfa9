// Package geocode resolves place names to coordinates and boundaries using a
// Nominatim search endpoint.
package geocode

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/sells-group/food-access-cli/internal/fetcher"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client resolves human place names.
type Client interface {
	// Geocode returns the representative point of a place.
	Geocode(ctx context.Context, place string) (*Result, error)

	// GeocodeRegion returns the administrative boundary of a place.
	GeocodeRegion(ctx context.Context, place string) (orb.Geometry, error)
}

// Result is one resolved place.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	OSMType     string
	OSMID       int64
	Boundary    orb.Geometry // nil unless the search returned a polygon
}

// Point returns the result as an orb point (lon, lat).
func (r *Result) Point() orb.Point { return orb.Point{r.Longitude, r.Latitude} }

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) { g.baseURL = u }
}

// WithUserAgent sets the User-Agent required by the Nominatim usage policy.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) { g.userAgent = ua }
}

// WithRateLimit sets the request rate. The public instance allows 1 req/s.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) { g.rps = rps }
}

// WithFetcher replaces the HTTP fetcher entirely.
func WithFetcher(f *fetcher.HTTPFetcher) Option {
	return func(g *geocoder) { g.http = f }
}

type geocoder struct {
	baseURL   string
	userAgent string
	rps       float64
	http      *fetcher.HTTPFetcher
}

// NewClient creates a Nominatim-backed Client.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:   DefaultBaseURL,
		userAgent: "food-access-cli/1.0",
		rps:       1,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.http == nil {
		g.http = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         g.userAgent,
			Timeout:           30 * time.Second,
			RequestsPerSecond: g.rps,
		})
	}
	return g
}
