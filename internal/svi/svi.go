// Package svi reads the CDC Social Vulnerability Index tract dataset, clipped
// to a region, from a shapefile or a GeoJSON export.
package svi

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
)

// Sentinel marks "data not available" in the SVI release.
const Sentinel = -999.0

// DensityField is the derived population-per-square-mile attribute.
const DensityField = "density"

// Record is one census tract.
type Record struct {
	GEOID    string
	Geometry orb.MultiPolygon
	// Fields holds the requested numeric attributes. Missing values are NaN.
	Fields map[string]float64
}

// Collection is a set of tracts in one CRS.
type Collection struct {
	CRS     geometry.CRS
	Records []Record
}

// Len returns the number of tracts.
func (c Collection) Len() int { return len(c.Records) }

// FieldNames returns the attribute names present on the records, sorted.
func (c Collection) FieldNames() []string {
	seen := make(map[string]struct{})
	for _, r := range c.Records {
		for k := range r.Fields {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Options configures a Reader.
type Options struct {
	// Path is the .shp, .geojson or .json file.
	Path string
	// Fields lists numeric attributes to keep. Empty keeps every numeric field.
	Fields          []string
	IDField         string // default "FIPS"
	PopulationField string // default "E_TOTPOP"
	AreaField       string // default "AREA_SQMI"
}

// DefaultFields are the attributes joined onto network nodes by default.
var DefaultFields = []string{"E_TOTPOP", "AREA_SQMI", "RPL_THEMES", "RPL_THEME1", "RPL_THEME2", "RPL_THEME3", "RPL_THEME4", "EP_POV150", "EP_NOVEH"}

// Reader loads tracts overlapping a region.
type Reader struct {
	opts Options
}

// NewReader creates a Reader.
func NewReader(opts Options) *Reader {
	if opts.IDField == "" {
		opts.IDField = "FIPS"
	}
	if opts.PopulationField == "" {
		opts.PopulationField = "E_TOTPOP"
	}
	if opts.AreaField == "" {
		opts.AreaField = "AREA_SQMI"
	}
	return &Reader{opts: opts}
}

// ReadRegion returns the tracts intersecting region (geodetic Polygon or
// MultiPolygon) with density computed and sentinels normalised to NaN.
// A missing dataset file is a configuration error.
func (r *Reader) ReadRegion(region orb.Geometry) (Collection, error) {
	var area orb.MultiPolygon
	switch g := region.(type) {
	case orb.Polygon:
		area = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		area = g
	default:
		return Collection{}, apperr.InvalidInput("svi.read_region", "region must be a polygon or multipolygon")
	}
	if _, err := os.Stat(r.opts.Path); err != nil {
		return Collection{}, eris.Wrapf(err, "svi: dataset %q", r.opts.Path)
	}

	var (
		records []Record
		err     error
	)
	switch strings.ToLower(filepath.Ext(r.opts.Path)) {
	case ".shp":
		records, err = r.readShapefile(area.Bound())
	case ".geojson", ".json":
		records, err = r.readGeoJSON(area.Bound())
	default:
		return Collection{}, eris.Errorf("svi: unsupported dataset format %q", filepath.Ext(r.opts.Path))
	}
	if err != nil {
		return Collection{}, err
	}

	out := Collection{CRS: geometry.WGS84}
	for _, rec := range records {
		if !intersects(rec.Geometry, area) {
			continue
		}
		r.addDensity(&rec)
		out.Records = append(out.Records, rec)
	}
	zap.L().Debug("svi: tracts in region",
		zap.String("path", r.opts.Path),
		zap.Int("candidates", len(records)),
		zap.Int("kept", len(out.Records)),
	)
	return out, nil
}

func (r *Reader) addDensity(rec *Record) {
	pop, okPop := rec.Fields[r.opts.PopulationField]
	area, okArea := rec.Fields[r.opts.AreaField]
	d := math.NaN()
	if okPop && okArea && area > 0 && !math.IsNaN(pop) {
		d = pop / area
	}
	rec.Fields[DensityField] = d
}

// wanted reports whether attribute name should be kept.
func (r *Reader) wanted(name string) bool {
	if strings.EqualFold(name, r.opts.PopulationField) || strings.EqualFold(name, r.opts.AreaField) {
		return true
	}
	if len(r.opts.Fields) == 0 {
		return true
	}
	for _, f := range r.opts.Fields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// parseValue converts a raw attribute, mapping the sentinel and unparsable
// text to NaN. ok is false when the value is not numeric at all.
func parseValue(raw string) (v float64, ok bool) {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if raw == "" {
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return clean(f), true
}

func clean(f float64) float64 {
	if f == Sentinel || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}
