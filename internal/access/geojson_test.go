package access

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/geometry"
)

func TestNodesGeoJSON(t *testing.T) {
	nodes := NodeTable{CRS: geometry.WGS84, Rows: []NodeRecord{
		{ID: 7, X: -73.75, Y: 42.65, Grocery: true, NearestGroceryTime: math.NaN(), PageRank: 0.2,
			Demographics: map[string]float64{"density": math.NaN()},
			Highways:     map[string]float64{"primary_hwy": 2}},
	}}

	fc, err := NodesGeoJSON(nodes)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{-73.75, 42.65}, f.Geometry)
	assert.Nil(t, f.Properties[ColNearestGroceryTime])
	assert.Nil(t, f.Properties["density"])
	assert.Equal(t, 2.0, f.Properties["primary_hwy"])

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nearest_grocery_time":null`)
}

func TestNodesGeoJSON_Projected(t *testing.T) {
	x, y, err := geometry.ConusAlbers.Forward(-73.75, 42.65)
	require.NoError(t, err)

	fc, err := NodesGeoJSON(NodeTable{CRS: geometry.ConusAlbers, Rows: []NodeRecord{{ID: 1, X: x, Y: y}}})
	require.NoError(t, err)
	p := fc.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, -73.75, p[0], 1e-6)
	assert.InDelta(t, 42.65, p[1], 1e-6)
}

func TestEdgesGeoJSON(t *testing.T) {
	edges := EdgeTable{CRS: geometry.WGS84, Rows: []EdgeRecord{
		{U: 1, V: 2, Length: 100, SpeedKPH: 30, TravelTime: 12, PageRank: math.NaN(), AOA: true,
			Geometry: orb.LineString{{-73.75, 42.65}, {-73.74, 42.65}},
			Tags:     map[string]string{"name": "State Street"}},
	}}

	fc, err := EdgesGeoJSON(edges)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.Equal(t, int64(1), props["u"])
	assert.Equal(t, "State Street", props["name"])
	assert.Nil(t, props[ColPageRank])
	assert.Equal(t, true, props[ColAOA])

	_, err = json.Marshal(fc)
	require.NoError(t, err)
}
