package network

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// Simplify removes interstitial nodes that only continue a street, merging
// the edges on either side into one edge whose geometry follows the street.
// A node is kept when it is a self-loop, a source or sink, or does not have
// exactly two distinct neighbours with total degree two or four.
func Simplify(g *Graph) *Graph {
	succ := make(map[int64][]int, len(g.Nodes))
	pred := make(map[int64][]int, len(g.Nodes))
	for i, e := range g.Edges {
		succ[e.U] = append(succ[e.U], i)
		pred[e.V] = append(pred[e.V], i)
	}

	endpoint := make(map[int64]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		endpoint[n.ID] = isEndpoint(g, n.ID, succ, pred)
	}

	pos := make(map[int64]orb.Point, len(g.Nodes))
	for _, n := range g.Nodes {
		pos[n.ID] = n.Point()
	}

	consumed := make([]bool, len(g.Edges))
	var merged []Edge
	for _, n := range g.Nodes {
		if !endpoint[n.ID] {
			continue
		}
		for _, first := range succ[n.ID] {
			if consumed[first] || endpoint[g.Edges[first].V] {
				continue
			}
			path := walk(g, first, endpoint, succ)
			for _, ei := range path {
				consumed[ei] = true
			}
			merged = append(merged, mergePath(g, path, pos))
		}
	}

	for _, e := range merged {
		endpoint[e.U], endpoint[e.V] = true, true
	}
	removed := make(map[int64]bool)
	for _, n := range g.Nodes {
		if endpoint[n.ID] {
			continue
		}
		all := true
		for _, ei := range succ[n.ID] {
			all = all && consumed[ei]
		}
		for _, ei := range pred[n.ID] {
			all = all && consumed[ei]
		}
		removed[n.ID] = all
	}

	out := &Graph{CRS: g.CRS}
	for _, n := range g.Nodes {
		if !removed[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for i, e := range g.Edges {
		if !consumed[i] {
			out.Edges = append(out.Edges, e)
		}
	}
	out.Edges = append(out.Edges, merged...)
	sort.SliceStable(out.Edges, func(i, j int) bool {
		if out.Edges[i].U != out.Edges[j].U {
			return out.Edges[i].U < out.Edges[j].U
		}
		return out.Edges[i].V < out.Edges[j].V
	})
	rekey(out.Edges)
	countStreets(out)
	return out
}

func isEndpoint(g *Graph, id int64, succ, pred map[int64][]int) bool {
	neighbours := make(map[int64]struct{})
	for _, ei := range succ[id] {
		neighbours[g.Edges[ei].V] = struct{}{}
	}
	for _, ei := range pred[id] {
		neighbours[g.Edges[ei].U] = struct{}{}
	}
	if _, self := neighbours[id]; self {
		return true
	}
	if len(succ[id]) == 0 || len(pred[id]) == 0 {
		return true
	}
	degree := len(succ[id]) + len(pred[id])
	return !(len(neighbours) == 2 && (degree == 2 || degree == 4))
}

// walk follows edges from first until it reaches an endpoint, returning the
// edge indexes along the way.
func walk(g *Graph, first int, endpoint map[int64]bool, succ map[int64][]int) []int {
	path := []int{first}
	visited := map[int64]bool{g.Edges[first].U: true}
	cur := g.Edges[first]
	for !endpoint[cur.V] {
		visited[cur.V] = true
		next := -1
		for _, ei := range succ[cur.V] {
			e := g.Edges[ei]
			if e.V == cur.U && len(succ[cur.V]) > 1 {
				continue // the opposite carriageway of a two-way street
			}
			if visited[e.V] && !endpoint[e.V] {
				continue
			}
			next = ei
			break
		}
		if next < 0 {
			break
		}
		path = append(path, next)
		cur = g.Edges[next]
	}
	return path
}

func mergePath(g *Graph, path []int, pos map[int64]orb.Point) Edge {
	first := g.Edges[path[0]]
	last := g.Edges[path[len(path)-1]]
	out := Edge{
		U:        first.U,
		V:        last.V,
		Oneway:   first.Oneway,
		Reversed: first.Reversed,
		Geometry: orb.LineString{pos[first.U]},
	}

	osmSeen := make(map[int64]bool)
	hwSeen := make(map[string]bool)
	tagVals := make(map[string][]string)
	for _, ei := range path {
		e := g.Edges[ei]
		out.Length += e.Length
		out.Geometry = append(out.Geometry, pos[e.V])
		for _, id := range e.OSMIDs {
			if !osmSeen[id] {
				osmSeen[id] = true
				out.OSMIDs = append(out.OSMIDs, id)
			}
		}
		for _, h := range e.Highway {
			if !hwSeen[h] {
				hwSeen[h] = true
				out.Highway = append(out.Highway, h)
			}
		}
		for k, v := range e.Tags {
			tagVals[k] = appendUnique(tagVals[k], strings.Split(v, ";")...)
		}
	}
	if len(tagVals) > 0 {
		out.Tags = make(map[string]string, len(tagVals))
		for k, vs := range tagVals {
			out.Tags[k] = strings.Join(vs, ";")
		}
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
