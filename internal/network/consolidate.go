package network

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Consolidate merges clusters of nodes that lie within 2*tolerance meters
// of each other into single intersections. The graph must be in a metric
// CRS. A cluster whose members are not connected to each other by edges is
// split into its connected parts. The merged node takes the smallest member
// identifier and the mean member position; edges inside a cluster are
// dropped and the remaining edge geometries are extended to the new node
// positions. Unless keepDeadEnds is set, dead-end nodes are removed first.
func Consolidate(g *Graph, tolerance float64, keepDeadEnds bool) *Graph {
	in := g
	if !keepDeadEnds {
		in = dropDeadEnds(g)
	}
	if len(in.Nodes) == 0 {
		return &Graph{CRS: g.CRS}
	}

	// Buffers of radius tolerance overlap when centres are closer than 2*tolerance.
	reach := 2 * tolerance
	near := newUnionFind(in.Nodes)
	cells := make(map[[2]int64][]int)
	cellOf := func(p orb.Point) [2]int64 {
		return [2]int64{int64(math.Floor(p[0] / reach)), int64(math.Floor(p[1] / reach))}
	}
	for i, n := range in.Nodes {
		c := cellOf(n.Point())
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range cells[[2]int64{c[0] + dx, c[1] + dy}] {
					m := in.Nodes[j]
					if math.Hypot(n.X-m.X, n.Y-m.Y) < reach {
						near.union(n.ID, m.ID)
					}
				}
			}
		}
		cells[c] = append(cells[c], i)
	}

	connected := newUnionFind(in.Nodes)
	for _, e := range in.Edges {
		if near.find(e.U) == near.find(e.V) {
			connected.union(e.U, e.V)
		}
	}

	members := make(map[int64][]Node)
	for _, n := range in.Nodes {
		root := connected.find(n.ID)
		members[root] = append(members[root], n)
	}

	roots := make([]int64, 0, len(members))
	for r := range members {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	out := &Graph{CRS: g.CRS}
	centre := make(map[int64]orb.Point, len(members))
	for _, r := range roots {
		ms := members[r]
		node := ms[0]
		for _, m := range ms[1:] {
			if m.ID < node.ID {
				node = m
			}
		}
		node.Tags = cloneTags(node.Tags)
		if len(ms) > 1 {
			var sx, sy float64
			for _, m := range ms {
				sx += m.X
				sy += m.Y
			}
			node.X, node.Y = sx/float64(len(ms)), sy/float64(len(ms))
		}
		// The root is the smallest identifier in the set.
		node.ID = r
		centre[r] = node.Point()
		out.Nodes = append(out.Nodes, node)
	}

	for _, e := range in.Edges {
		u2, v2 := connected.find(e.U), connected.find(e.V)
		if u2 == v2 && e.U != e.V {
			continue
		}
		ne := e
		ne.U, ne.V = u2, v2
		ne.OSMIDs = append([]int64(nil), e.OSMIDs...)
		ne.Highway = append([]string(nil), e.Highway...)
		ne.Tags = cloneTags(e.Tags)
		ls := e.Geometry.Clone()
		if len(members[u2]) > 1 {
			ls = append(orb.LineString{centre[u2]}, ls...)
		}
		if len(members[v2]) > 1 {
			ls = append(ls, centre[v2])
		}
		ne.Geometry = ls
		out.Edges = append(out.Edges, ne)
	}
	rekey(out.Edges)
	countStreets(out)
	return out
}

func dropDeadEnds(g *Graph) *Graph {
	dead := make(map[int64]bool)
	for _, n := range g.Nodes {
		if n.StreetCount <= 1 {
			dead[n.ID] = true
		}
	}
	if len(dead) == 0 {
		return g
	}
	out := &Graph{CRS: g.CRS}
	for _, n := range g.Nodes {
		if !dead[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if !dead[e.U] && !dead[e.V] {
			out.Edges = append(out.Edges, e)
		}
	}
	rekey(out.Edges)
	return out
}
