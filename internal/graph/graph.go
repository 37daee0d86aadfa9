// Package graph holds a compact directed multigraph and the path and
// centrality algorithms the accessibility pipeline runs over street networks.
package graph

import (
	"github.com/rotisserie/eris"
)

// Arc is one directed edge as seen from its tail (out list) or head (in list).
type Arc struct {
	To     int // dense index of the other endpoint
	Key    int // parallel-edge key
	Weight float64
}

// Graph is a directed multigraph over int64 node identifiers. Nodes are
// stored densely; algorithms return slices aligned with IDs().
type Graph struct {
	ids   []int64
	index map[int64]int
	out   [][]Arc
	in    [][]Arc
	edges int
}

// New creates a graph with the given node identifiers. Duplicate
// identifiers are an error.
func New(ids []int64) (*Graph, error) {
	g := &Graph{
		ids:   make([]int64, 0, len(ids)),
		index: make(map[int64]int, len(ids)),
		out:   make([][]Arc, len(ids)),
		in:    make([][]Arc, len(ids)),
	}
	for _, id := range ids {
		if _, dup := g.index[id]; dup {
			return nil, eris.Errorf("graph: duplicate node id %d", id)
		}
		g.index[id] = len(g.ids)
		g.ids = append(g.ids, id)
	}
	return g, nil
}

// AddEdge inserts the directed edge u→v. Both endpoints must exist.
func (g *Graph) AddEdge(u, v int64, key int, weight float64) error {
	ui, ok := g.index[u]
	if !ok {
		return eris.Errorf("graph: edge source %d not in node set", u)
	}
	vi, ok := g.index[v]
	if !ok {
		return eris.Errorf("graph: edge target %d not in node set", v)
	}
	g.out[ui] = append(g.out[ui], Arc{To: vi, Key: key, Weight: weight})
	g.in[vi] = append(g.in[vi], Arc{To: ui, Key: key, Weight: weight})
	g.edges++
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int { return g.edges }

// IDs returns node identifiers in dense-index order. The slice is shared;
// callers must not modify it.
func (g *Graph) IDs() []int64 { return g.ids }

// Index returns the dense index of a node identifier.
func (g *Graph) Index(id int64) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Out returns the outgoing arcs of the node at dense index i.
func (g *Graph) Out(i int) []Arc { return g.out[i] }

// In returns the incoming arcs of the node at dense index i; Arc.To is the tail.
func (g *Graph) In(i int) []Arc { return g.in[i] }

// ToMap pairs per-node values with their identifiers.
func (g *Graph) ToMap(values []float64) map[int64]float64 {
	m := make(map[int64]float64, len(values))
	for i, v := range values {
		m[g.ids[i]] = v
	}
	return m
}
