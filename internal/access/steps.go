package access

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/graph"
)

// indexedPoint is a node position stored in the nearest-neighbour index.
type indexedPoint struct {
	row int
	p   orb.Point
}

func (ip indexedPoint) Point() orb.Point { return ip.p }

// AttachGroceries sets Grocery on every node that is the nearest network
// node to at least one grocery. Groceries are points in groceryCRS; the
// join runs in the equal-area CRS.
func AttachGroceries(nodes NodeTable, groceries []orb.Point, groceryCRS geometry.CRS) (NodeTable, error) {
	const op = "access.attach_groceries"
	if err := requireCRS(op, nodes.CRS); err != nil {
		return NodeTable{}, err
	}
	if groceryCRS == nil {
		return NodeTable{}, apperr.New(apperr.KindMissingProjection, op, "grocery layer has no CRS")
	}
	out := nodes.Clone()
	for i := range out.Rows {
		out.Rows[i].Grocery = false
	}
	if len(out.Rows) == 0 || len(groceries) == 0 {
		return out, nil
	}

	positions := make([]orb.Point, len(out.Rows))
	for i, n := range out.Rows {
		positions[i] = n.Point()
	}
	projected, err := geometry.TransformPoints(positions, nodes.CRS, geometry.ConusAlbers)
	if err != nil {
		return NodeTable{}, err
	}
	targets, err := geometry.TransformPoints(groceries, groceryCRS, geometry.ConusAlbers)
	if err != nil {
		return NodeTable{}, err
	}

	bound := orb.MultiPoint(projected).Bound()
	for _, p := range targets {
		bound = bound.Extend(p)
	}
	qt := quadtree.New(bound.Pad(1))
	for i, p := range projected {
		if err := qt.Add(indexedPoint{row: i, p: p}); err != nil {
			return NodeTable{}, apperr.Wrap(apperr.KindDataIntegrity, op, err)
		}
	}
	for _, p := range targets {
		if nearest := qt.Find(p); nearest != nil {
			out.Rows[nearest.(indexedPoint).row].Grocery = true
		}
	}
	return out, nil
}

// GroceryIDs returns the identifiers of grocery nodes in table order.
func GroceryIDs(nodes NodeTable) []int64 {
	var ids []int64
	for _, n := range nodes.Rows {
		if n.Grocery {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// NearestGroceryTime sets every node's travel time to the closest grocery
// node along directed edges. Grocery nodes report the time to the nearest
// other grocery node. A lone grocery keeps zero; when other groceries exist
// but none is reachable the time is NaN. Unreachable nodes get NaN.
//
// With no grocery nodes every time is NaN and a non-fatal empty-result error
// is returned alongside the usable table.
func NearestGroceryTime(nodes NodeTable, g *graph.Graph) (NodeTable, error) {
	out := nodes.Clone()
	for i := range out.Rows {
		out.Rows[i].NearestGroceryTime = math.NaN()
	}
	sources := GroceryIDs(nodes)
	if len(sources) == 0 {
		zap.L().Warn("access: no grocery nodes in graph, travel time left undefined", zap.Int("nodes", len(nodes.Rows)))
		return out, apperr.EmptyResult("access.nearest_grocery_time", "no grocery nodes in graph")
	}

	dist := g.ToMap(graph.MultiSourceDijkstra(g, sources, graph.Reverse))
	for i, n := range out.Rows {
		if d, ok := dist[n.ID]; ok && !math.IsInf(d, 1) {
			out.Rows[i].NearestGroceryTime = d
		}
	}

	if len(sources) > 1 {
		idx := out.Index()
		for _, s := range sources {
			from := g.ToMap(graph.SingleSourceDijkstra(g, s, graph.Forward))
			best := math.Inf(1)
			for _, other := range sources {
				if other == s {
					continue
				}
				if d, ok := from[other]; ok && d < best {
					best = d
				}
			}
			if math.IsInf(best, 1) {
				best = math.NaN()
			}
			out.Rows[idx[s]].NearestGroceryTime = best
		}
	}
	return out, nil
}

// Importance sets the unweighted PageRank and the travel-time weighted
// betweenness of every node. Betweenness honours the configured cutoff and
// is therefore an approximation on large graphs.
func Importance(nodes NodeTable, g *graph.Graph, pr graph.PageRankOptions, bw graph.BetweennessOptions) NodeTable {
	out := nodes.Clone()
	rank := g.ToMap(graph.PageRank(g, pr).Scores)
	btw := g.ToMap(graph.Betweenness(g, bw))
	for i, n := range out.Rows {
		out.Rows[i].PageRank = valueOr(rank, n.ID)
		out.Rows[i].Betweenness = valueOr(btw, n.ID)
	}
	return out
}

// ProjectEdgeValues sets each edge's travel time to food and PageRank to the
// mean of its endpoints' values. A missing endpoint value yields NaN.
func ProjectEdgeValues(nodes NodeTable, edges EdgeTable) EdgeTable {
	out := edges.Clone()
	idx := nodes.Index()
	value := func(id int64, get func(NodeRecord) float64) float64 {
		i, ok := idx[id]
		if !ok {
			return math.NaN()
		}
		return get(nodes.Rows[i])
	}
	ngt := func(n NodeRecord) float64 { return n.NearestGroceryTime }
	rank := func(n NodeRecord) float64 { return n.PageRank }
	for i, e := range out.Rows {
		out.Rows[i].NearestGroceryTime = (value(e.U, ngt) + value(e.V, ngt)) / 2
		out.Rows[i].PageRank = (value(e.U, rank) + value(e.V, rank)) / 2
	}
	return out
}

// FlagRegions marks nodes inside the area of analysis and the edges whose
// both endpoints are inside it. Everything else belongs to the buffer ring.
// aoa must be in the node table's CRS.
func FlagRegions(nodes NodeTable, edges EdgeTable, aoa orb.Polygon) (NodeTable, EdgeTable, error) {
	if err := requireCRS("access.flag_regions", nodes.CRS); err != nil {
		return NodeTable{}, EdgeTable{}, err
	}
	outNodes := nodes.Clone()
	inside := make(map[int64]bool, len(outNodes.Rows))
	for i, n := range outNodes.Rows {
		in := len(aoa) > 0 && planar.PolygonContains(aoa, n.Point())
		outNodes.Rows[i].AOA = in
		outNodes.Rows[i].Buffer = !in
		inside[n.ID] = in
	}
	outEdges := edges.Clone()
	for i, e := range outEdges.Rows {
		in := inside[e.U] && inside[e.V]
		outEdges.Rows[i].AOA = in
		outEdges.Rows[i].Buffer = !in
	}
	return outNodes, outEdges, nil
}

func valueOr(m map[int64]float64, id int64) float64 {
	if v, ok := m[id]; ok {
		return v
	}
	return math.NaN()
}
