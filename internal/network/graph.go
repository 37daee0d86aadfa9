// Package network builds drivable street networks from OpenStreetMap road
// data: a directed multigraph of intersections and road segments annotated
// with free-flow speed and travel time.
package network

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/graph"
)

// ErrEmptyNetwork is returned when a region has no qualifying roads. Callers
// treat it as "no accessibility data", not as a failure.
var ErrEmptyNetwork = apperr.EmptyResult("network.build", "no qualifying roads in region")

// Node is an intersection or dead end.
type Node struct {
	ID          int64
	X, Y        float64 // lon/lat in WGS84, meters in a projected CRS
	StreetCount int
	Tags        map[string]string // raw OSM node tags kept for export (highway, ref)
}

// Point returns the node position.
func (n Node) Point() orb.Point { return orb.Point{n.X, n.Y} }

// Edge is one directed road segment between two nodes. Key separates
// parallel edges between the same pair.
type Edge struct {
	U, V       int64
	Key        int
	OSMIDs     []int64
	Highway    []string // one or more classes after simplification
	Oneway     bool
	Reversed   bool
	Length     float64 // meters
	SpeedKPH   float64
	TravelTime float64 // seconds
	Geometry   orb.LineString
	Tags       map[string]string // other OSM way tags; merged values joined by ";"
}

// Graph is a street network in one coordinate reference system.
type Graph struct {
	CRS   geometry.CRS
	Nodes []Node
	Edges []Edge
}

// Empty reports whether the graph has no edges.
func (g *Graph) Empty() bool { return g == nil || len(g.Edges) == 0 }

// NodeIndex maps node identifiers to their position in Nodes.
func (g *Graph) NodeIndex() map[int64]int {
	idx := make(map[int64]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	out := &Graph{CRS: g.CRS, Nodes: make([]Node, len(g.Nodes)), Edges: make([]Edge, len(g.Edges))}
	for i, n := range g.Nodes {
		n.Tags = cloneTags(n.Tags)
		out.Nodes[i] = n
	}
	for i, e := range g.Edges {
		e.OSMIDs = append([]int64(nil), e.OSMIDs...)
		e.Highway = append([]string(nil), e.Highway...)
		e.Geometry = e.Geometry.Clone()
		e.Tags = cloneTags(e.Tags)
		out.Edges[i] = e
	}
	return out
}

// Project returns a copy of the graph with node positions and edge
// geometries in the target CRS.
func (g *Graph) Project(to geometry.CRS) (*Graph, error) {
	if g.CRS == nil || to == nil {
		return nil, apperr.New(apperr.KindMissingProjection, "network.project", "graph and target CRS are required")
	}
	out := g.Clone()
	out.CRS = to
	if g.CRS.Name() == to.Name() {
		return out, nil
	}
	for i := range out.Nodes {
		p, err := geometry.TransformPoint(out.Nodes[i].Point(), g.CRS, to)
		if err != nil {
			return nil, eris.Wrapf(err, "network: project node %d", out.Nodes[i].ID)
		}
		out.Nodes[i].X, out.Nodes[i].Y = p[0], p[1]
	}
	for i := range out.Edges {
		if len(out.Edges[i].Geometry) == 0 {
			continue
		}
		ls, err := geometry.Transform(out.Edges[i].Geometry, g.CRS, to)
		if err != nil {
			return nil, eris.Wrapf(err, "network: project edge %d-%d", out.Edges[i].U, out.Edges[i].V)
		}
		out.Edges[i].Geometry = ls.(orb.LineString)
	}
	return out, nil
}

// Directed returns the routing view of the graph with weight(e) on each arc.
func (g *Graph) Directed(weight func(Edge) float64) (*graph.Graph, error) {
	ids := make([]int64, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	dg, err := graph.New(ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDataIntegrity, "network.directed", err)
	}
	for _, e := range g.Edges {
		if err := dg.AddEdge(e.U, e.V, e.Key, weight(e)); err != nil {
			return nil, apperr.Wrap(apperr.KindDataIntegrity, "network.directed", err)
		}
	}
	return dg, nil
}

// ByTravelTime weights arcs by travel time in seconds.
func ByTravelTime(e Edge) float64 { return e.TravelTime }

// Unweighted gives every arc weight 1.
func Unweighted(Edge) float64 { return 1 }

func cloneTags(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rekey assigns parallel-edge keys 0..n-1 per (u, v) in slice order.
func rekey(edges []Edge) {
	next := make(map[[2]int64]int)
	for i := range edges {
		pair := [2]int64{edges[i].U, edges[i].V}
		edges[i].Key = next[pair]
		next[pair]++
	}
}

// countStreets sets StreetCount to the number of distinct undirected street
// segments at each node, counting self-loops twice.
func countStreets(g *Graph) {
	seen := make(map[[3]int64]struct{})
	counts := make(map[int64]int, len(g.Nodes))
	for _, e := range g.Edges {
		a, b := e.U, e.V
		if a > b {
			a, b = b, a
		}
		// Reverse twins of a two-way street collapse to one segment.
		k := [3]int64{a, b, geometryKey(e)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		counts[e.U]++
		counts[e.V]++
	}
	for i := range g.Nodes {
		g.Nodes[i].StreetCount = counts[g.Nodes[i].ID]
	}
}

// geometryKey distinguishes parallel streets between the same two nodes by
// their rounded length.
func geometryKey(e Edge) int64 {
	return int64(e.Length*10 + 0.5)
}
