package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// ErrPlaceNotFound is returned when the search has no match.
var ErrPlaceNotFound = eris.New("geocode: place not found")

type searchHit struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	GeoJSON     *geojson.Geometry `json:"geojson,omitempty"`
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, place string) (*Result, error) {
	return g.search(ctx, place, false)
}

// GeocodeRegion implements Client. Places that only resolve to a point are
// reported as not found.
func (g *geocoder) GeocodeRegion(ctx context.Context, place string) (orb.Geometry, error) {
	res, err := g.search(ctx, place, true)
	if err != nil {
		return nil, err
	}
	switch res.Boundary.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return res.Boundary, nil
	default:
		return nil, apperr.Wrap(apperr.KindInvalidInput, "geocode.region",
			eris.Wrapf(ErrPlaceNotFound, "no boundary polygon for %q", place))
	}
}

func (g *geocoder) search(ctx context.Context, place string, withPolygon bool) (*Result, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, apperr.InvalidInput("geocode.search", "place name is empty")
	}

	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if withPolygon {
		q.Set("polygon_geojson", "1")
	}

	var hits []searchHit
	if err := g.http.GetJSON(ctx, strings.TrimRight(g.baseURL, "/")+"/search?"+q.Encode(), &hits); err != nil {
		return nil, eris.Wrapf(err, "geocode: search %q", place)
	}
	if len(hits) == 0 {
		zap.L().Warn("geocode: no match", zap.String("place", place))
		return nil, apperr.Wrap(apperr.KindInvalidInput, "geocode.search", eris.Wrapf(ErrPlaceNotFound, "%q", place))
	}

	hit := hits[0]
	lat, err := strconv.ParseFloat(hit.Lat, 64)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalRetrieval, "geocode.search", eris.Wrap(err, "geocode: parse lat"))
	}
	lon, err := strconv.ParseFloat(hit.Lon, 64)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalRetrieval, "geocode.search", eris.Wrap(err, "geocode: parse lon"))
	}

	res := &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: hit.DisplayName,
		OSMType:     hit.OSMType,
		OSMID:       hit.OSMID,
	}
	if hit.GeoJSON != nil {
		res.Boundary = hit.GeoJSON.Geometry()
	}
	return res, nil
}
