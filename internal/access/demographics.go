package access

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/svi"
)

// DefaultDemographicFields are joined when no fields are requested.
var DefaultDemographicFields = []string{svi.DensityField}

// JoinDemographics attaches the requested tract fields to every node that
// falls within a tract. Nodes outside every tract get NaN for each field.
//
// The join runs in the equal-area CRS. If either layer cannot be projected
// the join is repeated in geodetic coordinates and a non-fatal join-fallback
// error is returned alongside the usable table.
func JoinDemographics(nodes NodeTable, tracts svi.Collection, fields []string) (NodeTable, error) {
	const op = "access.join_demographics"
	if err := requireCRS(op, nodes.CRS); err != nil {
		return NodeTable{}, err
	}
	if len(fields) == 0 {
		fields = DefaultDemographicFields
	}

	out, err := joinWithin(nodes, tracts, fields, geometry.ConusAlbers)
	if err == nil {
		return out, nil
	}
	zap.L().Warn("access: falling back to spatial join in geodetic coordinates", zap.Error(err))
	out, fbErr := joinWithin(nodes, tracts, fields, geometry.WGS84)
	if fbErr != nil {
		return NodeTable{}, fbErr
	}
	return out, apperr.Wrap(apperr.KindJoinFallback, op, err)
}

func joinWithin(nodes NodeTable, tracts svi.Collection, fields []string, work geometry.CRS) (NodeTable, error) {
	if tracts.CRS == nil && tracts.Len() > 0 {
		return NodeTable{}, apperr.New(apperr.KindMissingProjection, "access.join_demographics", "tract layer has no CRS")
	}
	positions := make([]orb.Point, len(nodes.Rows))
	for i, n := range nodes.Rows {
		positions[i] = n.Point()
	}
	pts, err := geometry.TransformPoints(positions, nodes.CRS, work)
	if err != nil {
		return NodeTable{}, err
	}
	polys := make([]orb.MultiPolygon, tracts.Len())
	bounds := make([]orb.Bound, tracts.Len())
	for i, rec := range tracts.Records {
		polys[i], err = geometry.TransformMultiPolygon(rec.Geometry, tracts.CRS, work)
		if err != nil {
			return NodeTable{}, err
		}
		bounds[i] = polys[i].Bound()
	}

	out := nodes.Clone()
	for i, p := range pts {
		row := &out.Rows[i]
		if row.Demographics == nil {
			row.Demographics = make(map[string]float64, len(fields))
		}
		match := -1
		for j := range polys {
			if bounds[j].Contains(p) && planar.MultiPolygonContains(polys[j], p) {
				match = j
				break
			}
		}
		for _, f := range fields {
			v := math.NaN()
			if match >= 0 {
				if fv, ok := tracts.Records[match].Fields[f]; ok && fv != svi.Sentinel {
					v = fv
				}
			}
			row.Demographics[f] = v
		}
	}
	return out, nil
}
