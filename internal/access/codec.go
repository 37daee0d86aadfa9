package access

import (
	"bytes"
	"encoding/gob"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/network"
	"github.com/sells-group/food-access-cli/internal/poi"
	"github.com/sells-group/food-access-cli/internal/svi"
)

func init() {
	gob.Register(orb.Point{})
	gob.Register(orb.MultiPoint{})
	gob.Register(orb.LineString{})
	gob.Register(orb.MultiLineString{})
	gob.Register(orb.Ring{})
	gob.Register(orb.Polygon{})
	gob.Register(orb.MultiPolygon{})
}

// bundleWire is the serialised form of a Bundle. CRS values travel by name.
type bundleWire struct {
	Place          string
	RadiusM        float64
	BufferM        float64
	AreaOfAnalysis orb.Polygon
	QueryScope     orb.Polygon
	CenterLat      float64
	CenterLon      float64

	GraphCRS   string
	GraphNodes []network.Node
	GraphEdges []network.Edge

	GroceryCRS string
	Groceries  []poi.Record

	DemographicCRS string
	Demographics   []svi.Record

	TableCRS       string
	Nodes          []NodeRecord
	Edges          []EdgeRecord
	Cleaned        bool
	Columns        []string
	HighwayColumns []string

	Warnings []string
}

// EncodeBundle serialises a bundle for caching. NaN markers survive the
// round trip.
func EncodeBundle(b *Bundle) ([]byte, error) {
	if b == nil {
		return nil, eris.New("access: encode nil bundle")
	}
	w := bundleWire{
		Place:          b.Place,
		RadiusM:        b.RadiusM,
		BufferM:        b.BufferM,
		AreaOfAnalysis: b.AreaOfAnalysis,
		QueryScope:     b.QueryScope,
		CenterLat:      b.CenterLat,
		CenterLon:      b.CenterLon,
		GroceryCRS:     crsName(b.Groceries.CRS),
		Groceries:      b.Groceries.Records,
		DemographicCRS: crsName(b.Demographics.CRS),
		Demographics:   b.Demographics.Records,
		TableCRS:       crsName(b.Nodes.CRS),
		Nodes:          b.Nodes.Rows,
		Edges:          b.Edges.Rows,
		Cleaned:        b.Edges.Columns != nil,
		Columns:        b.Edges.Columns,
		HighwayColumns: b.Edges.HighwayColumns,
		Warnings:       b.Warnings,
	}
	if b.Graph != nil {
		w.GraphCRS = crsName(b.Graph.CRS)
		w.GraphNodes = b.Graph.Nodes
		w.GraphEdges = b.Graph.Edges
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, eris.Wrapf(err, "access: encode bundle %q", b.Place)
	}
	return buf.Bytes(), nil
}

// DecodeBundle restores a bundle produced by EncodeBundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var w bundleWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, eris.Wrap(err, "access: decode bundle")
	}
	b := &Bundle{
		Place:          w.Place,
		RadiusM:        w.RadiusM,
		BufferM:        w.BufferM,
		AreaOfAnalysis: w.AreaOfAnalysis,
		QueryScope:     w.QueryScope,
		CenterLat:      w.CenterLat,
		CenterLon:      w.CenterLon,
		Warnings:       w.Warnings,
	}
	var err error
	crs := func(name string) geometry.CRS {
		if name == "" || err != nil {
			return nil
		}
		var c geometry.CRS
		c, err = geometry.Lookup(name)
		return c
	}
	b.Graph = &network.Graph{CRS: crs(w.GraphCRS), Nodes: w.GraphNodes, Edges: w.GraphEdges}
	b.Groceries = poi.Collection{CRS: crs(w.GroceryCRS), Records: w.Groceries}
	b.Demographics = svi.Collection{CRS: crs(w.DemographicCRS), Records: w.Demographics}
	tableCRS := crs(w.TableCRS)
	b.Nodes = NodeTable{CRS: tableCRS, Rows: w.Nodes}
	b.Edges = EdgeTable{CRS: tableCRS, Rows: w.Edges, HighwayColumns: w.HighwayColumns}
	if w.Cleaned {
		b.Edges.Columns = append([]string{}, w.Columns...)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "access: decode bundle %q", w.Place)
	}
	return b, nil
}

func crsName(c geometry.CRS) string {
	if c == nil {
		return ""
	}
	return c.Name()
}
