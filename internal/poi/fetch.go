package poi

import (
	"context"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/overpass"
)

// Record is one labelled point of interest.
type Record struct {
	ID       string // "<osm type>/<osm id>", unique within a Collection
	Geometry orb.Geometry
	Tier     Tier
	Label    string
	Tags     map[string]string
}

// Collection is a POI layer with its coordinate reference system.
type Collection struct {
	CRS     geometry.CRS
	Records []Record
}

// Len returns the number of records.
func (c Collection) Len() int { return len(c.Records) }

// Points returns every record as a point. Non-point geometries are reduced
// to their centroid in the equal-area CRS.
func (c Collection) Points() ([]orb.Point, error) {
	geoms := make([]orb.Geometry, len(c.Records))
	for i, r := range c.Records {
		geoms[i] = r.Geometry
	}
	return geometry.Centroids(geoms, c.CRS, geometry.ConusAlbers)
}

// FeatureSource is the external spatial-feature collaborator.
type FeatureSource interface {
	Features(ctx context.Context, area orb.Polygon, filters []overpass.Filter) ([]overpass.Element, error)
}

// RegionResolver turns a place name into its boundary.
type RegionResolver interface {
	GeocodeRegion(ctx context.Context, place string) (orb.Geometry, error)
}

// Fetcher retrieves POI layers by tier.
type Fetcher struct {
	source   FeatureSource
	resolver RegionResolver
	taxonomy Taxonomy
}

// NewFetcher creates a Fetcher. A nil taxonomy selects DefaultTaxonomy.
func NewFetcher(source FeatureSource, resolver RegionResolver, taxonomy Taxonomy) *Fetcher {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Fetcher{source: source, resolver: resolver, taxonomy: taxonomy}
}

// FetchRegion returns the tier's features inside region (a Polygon or
// MultiPolygon in geodetic coordinates). With centroids set, every record
// is reduced to a point. Zero features is an empty-result error.
func (f *Fetcher) FetchRegion(ctx context.Context, region orb.Geometry, tier Tier, centroids bool) (Collection, error) {
	q := f.taxonomy.Merge(tier)
	if q.Empty() {
		return Collection{}, apperr.InvalidInput("poi.fetch", "taxonomy has no predicates for tier "+tier.String())
	}

	var polys []orb.Polygon
	switch g := region.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return Collection{}, apperr.InvalidInput("poi.fetch", "region must be a polygon or multipolygon")
	}

	out := Collection{CRS: geometry.WGS84}
	seen := make(map[string]struct{})
	for _, poly := range polys {
		elements, err := f.source.Features(ctx, poly, q.Filters())
		if err != nil {
			if apperr.KindOf(err) == apperr.KindEmptyResult {
				continue
			}
			return Collection{}, eris.Wrapf(err, "poi: fetch %s", tier)
		}
		for _, e := range elements {
			id := e.Type + "/" + strconv.FormatInt(e.ID, 10)
			if _, dup := seen[id]; dup {
				continue
			}
			g, ok := e.Shape()
			if !ok || !q.Matches(e.Tags) {
				continue
			}
			seen[id] = struct{}{}
			out.Records = append(out.Records, Record{
				ID:       id,
				Geometry: g,
				Tier:     tier,
				Label:    tier.Label(),
				Tags:     e.Tags,
			})
		}
	}

	if len(out.Records) == 0 {
		zap.L().Warn("poi: no features", zap.Stringer("tier", tier), zap.String("query", q.String()))
		return Collection{}, apperr.EmptyResult("poi.fetch", "no "+tier.Label()+" features in region")
	}

	if centroids {
		pts, err := out.Points()
		if err != nil {
			return Collection{}, err
		}
		for i := range out.Records {
			out.Records[i].Geometry = pts[i]
		}
	}
	return out, nil
}

// FetchPlace resolves the place boundary and fetches inside it.
func (f *Fetcher) FetchPlace(ctx context.Context, place string, tier Tier, centroids bool) (Collection, error) {
	if f.resolver == nil {
		return Collection{}, apperr.InvalidInput("poi.fetch_place", "no geocoder configured")
	}
	boundary, err := f.resolver.GeocodeRegion(ctx, place)
	if err != nil {
		return Collection{}, eris.Wrapf(err, "poi: resolve %q", place)
	}
	return f.FetchRegion(ctx, boundary, tier, centroids)
}

// FetchPoint fetches inside a circle of radiusM meters around lat/lon.
func (f *Fetcher) FetchPoint(ctx context.Context, lat, lon, radiusM float64, tier Tier, centroids bool) (Collection, error) {
	region, err := geometry.CircularRegionLonLat(lon, lat, radiusM)
	if err != nil {
		return Collection{}, err
	}
	return f.FetchRegion(ctx, region, tier, centroids)
}
