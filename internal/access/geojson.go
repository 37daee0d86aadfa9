package access

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/food-access-cli/internal/geometry"
)

// NodesGeoJSON renders the node table as lon/lat point features. Missing
// values are written as null.
func NodesGeoJSON(nodes NodeTable) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, n := range nodes.Rows {
		p, err := lonLat(n.Point(), nodes.CRS)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(p)
		f.ID = n.ID
		f.Properties["osmid"] = n.ID
		f.Properties[ColGrocery] = n.Grocery
		f.Properties[ColNearestGroceryTime] = jsonFloat(n.NearestGroceryTime)
		f.Properties[ColPageRank] = jsonFloat(n.PageRank)
		f.Properties[ColBetweenness] = jsonFloat(n.Betweenness)
		f.Properties[ColAOA] = n.AOA
		f.Properties[ColBuffer] = n.Buffer
		for k, v := range n.Demographics {
			f.Properties[k] = jsonFloat(v)
		}
		for k, v := range n.Highways {
			f.Properties[k] = jsonFloat(v)
		}
		fc.Append(f)
	}
	return fc, nil
}

// EdgesGeoJSON renders the edge table as lon/lat linestring features.
func EdgesGeoJSON(edges EdgeTable) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, e := range edges.Rows {
		var g orb.Geometry = e.Geometry
		if edges.CRS != nil && edges.CRS.Name() != geometry.WGS84.Name() {
			var err error
			if g, err = geometry.Transform(e.Geometry, edges.CRS, geometry.WGS84); err != nil {
				return nil, eris.Wrapf(err, "access: reproject edge %s", edgeLabel(e))
			}
		}
		f := geojson.NewFeature(g)
		f.Properties["u"] = e.U
		f.Properties["v"] = e.V
		f.Properties["key"] = e.Key
		f.Properties["length"] = jsonFloat(e.Length)
		f.Properties["speed_kph"] = jsonFloat(e.SpeedKPH)
		f.Properties["travel_time"] = jsonFloat(e.TravelTime)
		f.Properties[ColNearestGroceryTime] = jsonFloat(e.NearestGroceryTime)
		f.Properties[ColPageRank] = jsonFloat(e.PageRank)
		f.Properties[ColAOA] = e.AOA
		f.Properties[ColBuffer] = e.Buffer
		if len(e.Highway) > 0 {
			f.Properties["highway"] = e.Highway
		}
		for k, v := range e.Tags {
			f.Properties[k] = v
		}
		for k, v := range e.Highways {
			f.Properties[k] = jsonFloat(v)
		}
		fc.Append(f)
	}
	return fc, nil
}

func lonLat(p orb.Point, crs geometry.CRS) (orb.Point, error) {
	if crs == nil || crs.Name() == geometry.WGS84.Name() {
		return p, nil
	}
	out, err := geometry.TransformPoint(p, crs, geometry.WGS84)
	if err != nil {
		return orb.Point{}, eris.Wrap(err, "access: reproject node")
	}
	return out, nil
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
