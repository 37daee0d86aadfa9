package graph

import (
	"container/heap"
	"math"
)

// Direction selects which way arcs are followed.
type Direction int

const (
	// Forward follows arcs tail→head: distance from the sources.
	Forward Direction = iota
	// Reverse follows arcs head→tail: distance to the sources.
	Reverse
)

type pqItem struct {
	node int
	dist float64
}

type distHeap []pqItem

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *distHeap) Push(x any) { *h = append(*h, x.(pqItem)) }

func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MultiSourceDijkstra returns, for every node, the minimum weighted distance
// between it and the nearest of sources. Unreachable nodes are +Inf.
// Unknown source identifiers are ignored.
func MultiSourceDijkstra(g *Graph, sources []int64, dir Direction) []float64 {
	dist := make([]float64, g.Len())
	for i := range dist {
		dist[i] = math.Inf(1)
	}

	h := make(distHeap, 0, len(sources))
	for _, id := range sources {
		if i, ok := g.index[id]; ok && dist[i] != 0 {
			dist[i] = 0
			h = append(h, pqItem{node: i})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		cur := heap.Pop(&h).(pqItem)
		if cur.dist > dist[cur.node] {
			continue
		}
		arcs := g.out[cur.node]
		if dir == Reverse {
			arcs = g.in[cur.node]
		}
		for _, a := range arcs {
			nd := cur.dist + a.Weight
			if nd < dist[a.To] {
				dist[a.To] = nd
				heap.Push(&h, pqItem{node: a.To, dist: nd})
			}
		}
	}
	return dist
}

// SingleSourceDijkstra returns distances from (Forward) or to (Reverse) one node.
func SingleSourceDijkstra(g *Graph, source int64, dir Direction) []float64 {
	return MultiSourceDijkstra(g, []int64{source}, dir)
}
