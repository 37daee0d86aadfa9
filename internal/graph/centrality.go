package graph

import (
	"container/heap"
	"math"

	"github.com/rotisserie/eris"
)

// CutoffMode selects how BetweennessOptions.Cutoff bounds path length.
type CutoffMode string

const (
	// CutoffHops ignores shortest paths with more than Cutoff edges.
	CutoffHops CutoffMode = "hops"
	// CutoffCost ignores shortest paths whose weighted length exceeds Cutoff.
	CutoffCost CutoffMode = "cost"
)

// ParseCutoffMode validates a cutoff mode name.
func ParseCutoffMode(s string) (CutoffMode, error) {
	switch CutoffMode(s) {
	case CutoffHops, CutoffCost:
		return CutoffMode(s), nil
	case "":
		return CutoffHops, nil
	default:
		return "", eris.Errorf("graph: unknown cutoff mode %q (valid: hops, cost)", s)
	}
}

// BetweennessOptions bounds the betweenness computation.
type BetweennessOptions struct {
	// Cutoff limits the shortest paths considered. Zero or negative disables it.
	Cutoff float64
	Mode   CutoffMode
}

// DefaultBetweennessOptions returns a 500-hop cutoff.
func DefaultBetweennessOptions() BetweennessOptions {
	return BetweennessOptions{Cutoff: 500, Mode: CutoffHops}
}

// Betweenness computes weighted, directed, unnormalised betweenness
// centrality with Brandes' accumulation over Dijkstra searches.
//
// With a cutoff this is an approximation, not exact betweenness: each
// search stops extending paths once they exceed the cutoff, so pairs farther
// apart than the cutoff contribute nothing. In hop mode the hop count is
// taken along the first shortest path found to each node.
func Betweenness(g *Graph, opts BetweennessOptions) []float64 {
	n := g.Len()
	bc := make([]float64, n)
	if n == 0 {
		return bc
	}
	limited := opts.Cutoff > 0

	dist := make([]float64, n)
	hops := make([]int, n)
	sigma := make([]float64, n)
	delta := make([]float64, n)
	settled := make([]bool, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for i := 0; i < n; i++ {
			dist[i] = math.Inf(1)
			hops[i] = 0
			sigma[i] = 0
			delta[i] = 0
			settled[i] = false
			preds[i] = preds[i][:0]
		}
		stack = stack[:0]
		dist[s] = 0
		sigma[s] = 1

		h := distHeap{{node: s}}
		for h.Len() > 0 {
			cur := heap.Pop(&h).(pqItem)
			v := cur.node
			if settled[v] || cur.dist > dist[v] {
				continue
			}
			settled[v] = true
			stack = append(stack, v)

			if limited && opts.Mode != CutoffCost && float64(hops[v]) >= opts.Cutoff {
				continue
			}
			for _, a := range g.out[v] {
				w := a.To
				nd := dist[v] + a.Weight
				if limited && opts.Mode == CutoffCost && nd > opts.Cutoff {
					continue
				}
				switch {
				case nd < dist[w] && !nearlyEqual(nd, dist[w]):
					dist[w] = nd
					sigma[w] = sigma[v]
					hops[w] = hops[v] + 1
					preds[w] = append(preds[w][:0], v)
					heap.Push(&h, pqItem{node: w, dist: nd})
				case nearlyEqual(nd, dist[w]) && !settled[w]:
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				bc[w] += delta[w]
			}
		}
	}
	return bc
}

func nearlyEqual(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
