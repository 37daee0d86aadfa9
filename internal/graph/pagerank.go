package graph

import (
	"math"
)

// PageRankOptions configures the PageRank power iteration.
type PageRankOptions struct {
	DampingFactor float64 // usually 0.85
	MaxIterations int
	Tolerance     float64 // per-node; convergence is checked against N*Tolerance
}

// DefaultPageRankOptions returns the standard configuration.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// PageRankResult contains the stationary distribution over nodes.
type PageRankResult struct {
	Scores     []float64 // aligned with Graph.IDs()
	Iterations int
	Converged  bool
}

// PageRank computes unweighted PageRank. Parallel edges count with their
// multiplicity and the mass of dangling nodes is spread uniformly.
func PageRank(g *Graph, opts PageRankOptions) PageRankResult {
	n := g.Len()
	if n == 0 {
		return PageRankResult{Scores: []float64{}, Converged: true}
	}
	if opts.DampingFactor <= 0 || opts.DampingFactor >= 1 {
		opts.DampingFactor = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}

	alpha := opts.DampingFactor
	inv := 1.0 / float64(n)

	x := make([]float64, n)
	for i := range x {
		x[i] = inv
	}
	next := make([]float64, n)

	res := PageRankResult{}
	for res.Iterations < opts.MaxIterations {
		res.Iterations++

		dangling := 0.0
		for i := 0; i < n; i++ {
			if len(g.out[i]) == 0 {
				dangling += x[i]
			}
		}
		base := alpha*dangling*inv + (1-alpha)*inv
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			deg := len(g.out[i])
			if deg == 0 {
				continue
			}
			share := alpha * x[i] / float64(deg)
			for _, a := range g.out[i] {
				next[a.To] += share
			}
		}

		diff := 0.0
		for i := range x {
			diff += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		if diff < float64(n)*opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Scores = x
	return res
}
