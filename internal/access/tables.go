// Package access fuses a street network, grocery locations and demographic
// tracts into analysis-ready node and edge tables. Every step takes tables
// and returns new tables; inputs are never modified.
package access

import (
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/graph"
	"github.com/sells-group/food-access-cli/internal/network"
)

// Column names used in exported tables.
const (
	ColNearestGroceryTime = "nearest_grocery_time"
	ColPageRank           = "pagerank"
	ColBetweenness        = "betweenness"
	ColGrocery            = "grocery"
	ColAOA                = "aoa"
	ColBuffer             = "buffer"

	// HighwaySuffix is appended to road classes in indicator columns.
	HighwaySuffix = "_hwy"
)

// NodeRecord is one row of the node table. Missing numeric values are NaN.
type NodeRecord struct {
	ID                 int64
	X, Y               float64
	StreetCount        int
	Grocery            bool
	NearestGroceryTime float64
	PageRank           float64
	Betweenness        float64
	AOA                bool
	Buffer             bool
	Demographics       map[string]float64
	Highways           map[string]float64
	Tags               map[string]string
}

// Point returns the node position.
func (n NodeRecord) Point() orb.Point { return orb.Point{n.X, n.Y} }

// EdgeRecord is one row of the edge table.
type EdgeRecord struct {
	U, V               int64
	Key                int
	OSMIDs             []int64
	Highway            []string // raw classes; cleared once expanded to indicators
	Oneway             bool
	Reversed           bool
	Length             float64
	SpeedKPH           float64
	TravelTime         float64
	NearestGroceryTime float64
	PageRank           float64
	AOA                bool
	Buffer             bool
	Geometry           orb.LineString
	Tags               map[string]string
	Highways           map[string]float64
}

// NodeTable is the node layer of an enriched graph.
type NodeTable struct {
	CRS  geometry.CRS
	Rows []NodeRecord
}

// Len returns the number of rows.
func (t NodeTable) Len() int { return len(t.Rows) }

// EdgeTable is the edge layer of an enriched graph. Columns lists the
// optional attribute columns that survived cleaning; nil means cleaning has
// not run and every column is present.
type EdgeTable struct {
	CRS            geometry.CRS
	Rows           []EdgeRecord
	Columns        []string
	HighwayColumns []string
}

// Len returns the number of rows.
func (t EdgeTable) Len() int { return len(t.Rows) }

// HasColumn reports whether an optional column is present.
func (t EdgeTable) HasColumn(name string) bool {
	if t.Columns == nil {
		return true
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// HasTravelTime reports whether any node carries a finite travel time.
func (t NodeTable) HasTravelTime() bool {
	for _, r := range t.Rows {
		if finite(r.NearestGroceryTime) {
			return true
		}
	}
	return false
}

// DemographicColumns returns the joined demographic fields, sorted.
func (t NodeTable) DemographicColumns() []string {
	return unionKeys(t.Rows, func(r NodeRecord) map[string]float64 { return r.Demographics })
}

// HighwayColumns returns the aggregated highway indicator columns, sorted.
func (t NodeTable) HighwayColumns() []string {
	return unionKeys(t.Rows, func(r NodeRecord) map[string]float64 { return r.Highways })
}

// Index maps node IDs to row positions.
func (t NodeTable) Index() map[int64]int {
	idx := make(map[int64]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[r.ID] = i
	}
	return idx
}

// Clone returns a deep copy.
func (t NodeTable) Clone() NodeTable {
	out := NodeTable{CRS: t.CRS, Rows: make([]NodeRecord, len(t.Rows))}
	for i, r := range t.Rows {
		r.Demographics = cloneFloats(r.Demographics)
		r.Highways = cloneFloats(r.Highways)
		r.Tags = cloneStrings(r.Tags)
		out.Rows[i] = r
	}
	return out
}

// Clone returns a deep copy.
func (t EdgeTable) Clone() EdgeTable {
	out := EdgeTable{
		CRS:            t.CRS,
		Rows:           make([]EdgeRecord, len(t.Rows)),
		Columns:        append([]string(nil), t.Columns...),
		HighwayColumns: append([]string(nil), t.HighwayColumns...),
	}
	if t.Columns == nil {
		out.Columns = nil
	}
	for i, r := range t.Rows {
		r.OSMIDs = append([]int64(nil), r.OSMIDs...)
		r.Highway = append([]string(nil), r.Highway...)
		r.Geometry = r.Geometry.Clone()
		r.Tags = cloneStrings(r.Tags)
		r.Highways = cloneFloats(r.Highways)
		out.Rows[i] = r
	}
	return out
}

// TablesFromGraph converts a street network into fresh node and edge tables
// with every derived attribute unset.
func TablesFromGraph(g *network.Graph) (NodeTable, EdgeTable, error) {
	if g == nil {
		return NodeTable{}, EdgeTable{}, apperr.InvalidInput("access.tables", "nil graph")
	}
	if g.CRS == nil {
		return NodeTable{}, EdgeTable{}, apperr.New(apperr.KindMissingProjection, "access.tables", "graph has no CRS")
	}
	nodes := NodeTable{CRS: g.CRS, Rows: make([]NodeRecord, len(g.Nodes))}
	for i, n := range g.Nodes {
		nodes.Rows[i] = NodeRecord{
			ID:                 n.ID,
			X:                  n.X,
			Y:                  n.Y,
			StreetCount:        n.StreetCount,
			NearestGroceryTime: math.NaN(),
			PageRank:           math.NaN(),
			Betweenness:        math.NaN(),
			Tags:               cloneStrings(n.Tags),
		}
	}
	edges := EdgeTable{CRS: g.CRS, Rows: make([]EdgeRecord, len(g.Edges))}
	for i, e := range g.Edges {
		edges.Rows[i] = EdgeRecord{
			U:                  e.U,
			V:                  e.V,
			Key:                e.Key,
			OSMIDs:             append([]int64(nil), e.OSMIDs...),
			Highway:            append([]string(nil), e.Highway...),
			Oneway:             e.Oneway,
			Reversed:           e.Reversed,
			Length:             e.Length,
			SpeedKPH:           e.SpeedKPH,
			TravelTime:         e.TravelTime,
			NearestGroceryTime: math.NaN(),
			PageRank:           math.NaN(),
			Geometry:           e.Geometry.Clone(),
			Tags:               cloneStrings(e.Tags),
		}
	}
	if err := checkUnique(nodes, edges, "access.tables"); err != nil {
		return NodeTable{}, EdgeTable{}, err
	}
	return nodes, edges, nil
}

// ToGraph reassembles a street network from tables, keyed by
// (source, target, parallel index).
func ToGraph(nodes NodeTable, edges EdgeTable) (*network.Graph, error) {
	if err := checkUnique(nodes, edges, "access.reassemble"); err != nil {
		return nil, err
	}
	g := &network.Graph{CRS: nodes.CRS, Nodes: make([]network.Node, len(nodes.Rows)), Edges: make([]network.Edge, 0, len(edges.Rows))}
	for i, n := range nodes.Rows {
		g.Nodes[i] = network.Node{ID: n.ID, X: n.X, Y: n.Y, StreetCount: n.StreetCount, Tags: cloneStrings(n.Tags)}
	}
	idx := nodes.Index()
	for _, e := range edges.Rows {
		_, okU := idx[e.U]
		_, okV := idx[e.V]
		if !okU || !okV {
			return nil, apperr.New(apperr.KindDataIntegrity, "access.reassemble",
				"edge "+edgeLabel(e)+" references a node missing from the node table")
		}
		g.Edges = append(g.Edges, network.Edge{
			U:          e.U,
			V:          e.V,
			Key:        e.Key,
			OSMIDs:     append([]int64(nil), e.OSMIDs...),
			Highway:    append([]string(nil), e.Highway...),
			Oneway:     e.Oneway,
			Reversed:   e.Reversed,
			Length:     e.Length,
			SpeedKPH:   e.SpeedKPH,
			TravelTime: e.TravelTime,
			Geometry:   e.Geometry.Clone(),
			Tags:       cloneStrings(e.Tags),
		})
	}
	return g, nil
}

// RoutingGraph builds the directed routing view of the tables with edge
// weights taken from travel time.
func RoutingGraph(nodes NodeTable, edges EdgeTable) (*graph.Graph, error) {
	ids := make([]int64, len(nodes.Rows))
	for i, n := range nodes.Rows {
		ids[i] = n.ID
	}
	g, err := graph.New(ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDataIntegrity, "access.routing_graph", err)
	}
	for _, e := range edges.Rows {
		if err := g.AddEdge(e.U, e.V, e.Key, e.TravelTime); err != nil {
			return nil, apperr.Wrap(apperr.KindDataIntegrity, "access.routing_graph", err)
		}
	}
	return g, nil
}

// checkUnique asserts node IDs and (u, v, key) edge keys are unique.
func checkUnique(nodes NodeTable, edges EdgeTable, op string) error {
	seen := make(map[int64]struct{}, len(nodes.Rows))
	for _, n := range nodes.Rows {
		if _, dup := seen[n.ID]; dup {
			return apperr.New(apperr.KindDataIntegrity, op, "duplicate node id "+strconv.FormatInt(n.ID, 10))
		}
		seen[n.ID] = struct{}{}
	}
	type edgeKey struct {
		u, v int64
		k    int
	}
	seenEdges := make(map[edgeKey]struct{}, len(edges.Rows))
	for _, e := range edges.Rows {
		k := edgeKey{e.U, e.V, e.Key}
		if _, dup := seenEdges[k]; dup {
			return apperr.New(apperr.KindDataIntegrity, op, "duplicate edge "+edgeLabel(e))
		}
		seenEdges[k] = struct{}{}
	}
	return nil
}

func requireCRS(op string, crs geometry.CRS) error {
	if crs == nil {
		return apperr.New(apperr.KindMissingProjection, op, "table has no CRS")
	}
	return nil
}

func edgeLabel(e EdgeRecord) string {
	return strconv.FormatInt(e.U, 10) + "-" + strconv.FormatInt(e.V, 10) + "/" + strconv.Itoa(e.Key)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func unionKeys[R any](rows []R, get func(R) map[string]float64) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range get(r) {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
