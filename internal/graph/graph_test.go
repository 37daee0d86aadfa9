package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// undirected adds both directions of every edge.
func undirected(t *testing.T, ids []int64, edges [][3]float64) *Graph {
	t.Helper()
	g, err := New(ids)
	require.NoError(t, err)
	for _, e := range edges {
		require.NoError(t, g.AddEdge(int64(e[0]), int64(e[1]), 0, e[2]))
		require.NoError(t, g.AddEdge(int64(e[1]), int64(e[0]), 0, e[2]))
	}
	return g
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]int64{1, 2, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id 1")
}

func TestAddEdge_UnknownEndpoint(t *testing.T) {
	g, err := New([]int64{1})
	require.NoError(t, err)
	assert.Error(t, g.AddEdge(1, 2, 0, 1))
	assert.Error(t, g.AddEdge(3, 1, 0, 1))
	assert.Equal(t, 0, g.EdgeCount())
}

func TestGraph_Accessors(t *testing.T) {
	g := undirected(t, []int64{10, 20}, [][3]float64{{10, 20, 4}})
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 2, g.EdgeCount())
	i, ok := g.Index(20)
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = g.Index(99)
	assert.False(t, ok)
	assert.Len(t, g.Out(0), 1)
	assert.Len(t, g.In(0), 1)
	assert.Equal(t, map[int64]float64{10: 1, 20: 2}, g.ToMap([]float64{1, 2}))
}

func TestMultiSourceDijkstra_FiveNode(t *testing.T) {
	// A=1 B=2 C=3 D=4 E=5
	g := undirected(t, []int64{1, 2, 3, 4, 5}, [][3]float64{
		{1, 2, 2}, {1, 3, 5}, {2, 4, 3}, {3, 5, 1},
	})
	got := g.ToMap(MultiSourceDijkstra(g, []int64{1}, Reverse))
	assert.Equal(t, map[int64]float64{1: 0, 2: 2, 3: 5, 4: 5, 5: 6}, got)
}

func TestMultiSourceDijkstra_Direction(t *testing.T) {
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(2, 3, 0, 1))

	fwd := MultiSourceDijkstra(g, []int64{1}, Forward)
	assert.Equal(t, []float64{0, 1, 2}, fwd)

	// Nothing can reach node 1.
	rev := MultiSourceDijkstra(g, []int64{1}, Reverse)
	assert.Equal(t, 0.0, rev[0])
	assert.True(t, math.IsInf(rev[1], 1))
	assert.True(t, math.IsInf(rev[2], 1))

	toEnd := MultiSourceDijkstra(g, []int64{3}, Reverse)
	assert.Equal(t, []float64{2, 1, 0}, toEnd)
}

func TestMultiSourceDijkstra_NearestOfManySources(t *testing.T) {
	g := undirected(t, []int64{1, 2, 3, 4}, [][3]float64{
		{1, 2, 10}, {2, 3, 1}, {3, 4, 10},
	})
	got := MultiSourceDijkstra(g, []int64{1, 4}, Reverse)
	assert.Equal(t, []float64{0, 10, 10, 0}, got)
}

func TestMultiSourceDijkstra_ParallelEdgesUseCheapest(t *testing.T) {
	g, err := New([]int64{1, 2})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 9))
	require.NoError(t, g.AddEdge(1, 2, 1, 4))
	assert.Equal(t, []float64{0, 4}, SingleSourceDijkstra(g, 1, Forward))
}

func TestMultiSourceDijkstra_UnknownSourceIgnored(t *testing.T) {
	g := undirected(t, []int64{1, 2}, [][3]float64{{1, 2, 1}})
	got := MultiSourceDijkstra(g, []int64{42}, Reverse)
	assert.True(t, math.IsInf(got[0], 1))
	assert.True(t, math.IsInf(got[1], 1))
}

func TestPageRank_Cycle(t *testing.T) {
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(2, 3, 0, 1))
	require.NoError(t, g.AddEdge(3, 1, 0, 1))

	res := PageRank(g, DefaultPageRankOptions())
	assert.True(t, res.Converged)
	for _, s := range res.Scores {
		assert.InDelta(t, 1.0/3, s, 1e-9)
	}
}

func TestPageRank_DanglingMassConserved(t *testing.T) {
	g, err := New([]int64{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(1, 3, 0, 1))
	require.NoError(t, g.AddEdge(3, 4, 0, 1))

	res := PageRank(g, DefaultPageRankOptions())
	sum := 0.0
	for _, s := range res.Scores {
		sum += s
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// 4 is only reachable through 3, which is only reachable through 1.
	assert.Greater(t, res.Scores[3], res.Scores[0])
}

func TestPageRank_IgnoresWeights(t *testing.T) {
	build := func(w float64) []float64 {
		g, err := New([]int64{1, 2})
		require.NoError(t, err)
		require.NoError(t, g.AddEdge(1, 2, 0, w))
		require.NoError(t, g.AddEdge(2, 1, 0, 1))
		return PageRank(g, DefaultPageRankOptions()).Scores
	}
	assert.InDeltaSlice(t, build(1), build(1000), 1e-12)
}

func TestPageRank_Empty(t *testing.T) {
	g, err := New(nil)
	require.NoError(t, err)
	res := PageRank(g, DefaultPageRankOptions())
	assert.Empty(t, res.Scores)
	assert.True(t, res.Converged)
}

func TestBetweenness_Path(t *testing.T) {
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(2, 3, 0, 1))

	bc := Betweenness(g, BetweennessOptions{})
	assert.Equal(t, []float64{0, 1, 0}, bc)
}

func TestBetweenness_SplitsEqualPaths(t *testing.T) {
	// 1→2→4 and 1→3→4 cost the same.
	g, err := New([]int64{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(1, 3, 0, 2))
	require.NoError(t, g.AddEdge(2, 4, 0, 2))
	require.NoError(t, g.AddEdge(3, 4, 0, 1))

	bc := Betweenness(g, BetweennessOptions{})
	assert.InDelta(t, 0.5, bc[1], 1e-12)
	assert.InDelta(t, 0.5, bc[2], 1e-12)
}

func TestBetweenness_UsesWeights(t *testing.T) {
	// Direct edge 1→3 is slower than going through 2.
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 3, 0, 10))
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(2, 3, 0, 1))

	bc := Betweenness(g, BetweennessOptions{})
	assert.Equal(t, 1.0, bc[1])
}

func TestBetweenness_HopCutoff(t *testing.T) {
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 1))
	require.NoError(t, g.AddEdge(2, 3, 0, 1))

	bc := Betweenness(g, BetweennessOptions{Cutoff: 1, Mode: CutoffHops})
	assert.Equal(t, []float64{0, 0, 0}, bc)
}

func TestBetweenness_CostCutoff(t *testing.T) {
	g, err := New([]int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0, 5))
	require.NoError(t, g.AddEdge(2, 3, 0, 5))

	assert.Equal(t, 0.0, Betweenness(g, BetweennessOptions{Cutoff: 9, Mode: CutoffCost})[1])
	assert.Equal(t, 1.0, Betweenness(g, BetweennessOptions{Cutoff: 10, Mode: CutoffCost})[1])
}

func TestParseCutoffMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CutoffMode
		wantErr bool
	}{
		{"hops", CutoffHops, false},
		{"cost", CutoffCost, false},
		{"", CutoffHops, false},
		{"meters", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCutoffMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
