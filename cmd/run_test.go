package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/geometry"
)

func testBundle() *access.Bundle {
	return &access.Bundle{
		Place: "Albany, NY",
		Nodes: access.NodeTable{CRS: geometry.WGS84, Rows: []access.NodeRecord{
			{ID: 1, X: -73.75, Y: 42.65, Grocery: true, NearestGroceryTime: 0, PageRank: 0.5},
			{ID: 2, X: -73.76, Y: 42.66, NearestGroceryTime: 120, PageRank: 0.5, Betweenness: math.NaN()},
		}},
		Edges: access.EdgeTable{CRS: geometry.WGS84, Rows: []access.EdgeRecord{
			{U: 1, V: 2, Length: 1200, SpeedKPH: 36, TravelTime: 120,
				Geometry: orb.LineString{{-73.75, 42.65}, {-73.76, 42.66}}},
		}},
	}
}

func TestWriteNodesAndEdges(t *testing.T) {
	dir := t.TempDir()
	nodesPath := filepath.Join(dir, "nodes.geojson")
	edgesPath := filepath.Join(dir, "edges.geojson")

	b := testBundle()
	require.NoError(t, writeNodes(nodesPath, b))
	require.NoError(t, writeEdges(edgesPath, b))

	var fc struct {
		Type     string `json:"type"`
		Features []json.RawMessage
	}
	data, err := os.ReadFile(nodesPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)

	data, err = os.ReadFile(edgesPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Len(t, fc.Features, 1)
}

func TestWriteNodes_BadPath(t *testing.T) {
	err := writeNodes(filepath.Join(t.TempDir(), "missing", "nodes.geojson"), testBundle())
	assert.Error(t, err)
}
