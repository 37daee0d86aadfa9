package access

import (
	"math"
	"sort"
)

// EdgeCompleteness is the share of rows an optional edge column must fill to
// survive cleaning.
const EdgeCompleteness = 0.95

// nodeArtifactTags are join leftovers removed from nodes during cleaning.
var nodeArtifactTags = []string{"lat", "lon", "index_right", "highway", "ref"}

// CleanEdges drops optional columns missing in more than 5% of rows, then
// drops rows missing any remaining value, then expands each row's highway
// classes into "<class>_hwy" indicator counts and drops the raw classes.
func CleanEdges(edges EdgeTable) EdgeTable {
	out := edges.Clone()
	n := len(out.Rows)
	thresh := int(float64(n) * EdgeCompleteness)

	counts := make(map[string]int)
	for _, col := range []string{ColNearestGroceryTime, ColPageRank} {
		counts[col] = 0
	}
	for _, e := range out.Rows {
		if finite(e.NearestGroceryTime) {
			counts[ColNearestGroceryTime]++
		}
		if finite(e.PageRank) {
			counts[ColPageRank]++
		}
		for k, v := range e.Tags {
			if _, ok := counts[k]; !ok {
				counts[k] = 0
			}
			if v != "" {
				counts[k]++
			}
		}
	}
	keep := make(map[string]bool, len(counts))
	for col, c := range counts {
		if c >= thresh && c > 0 && edges.HasColumn(col) {
			keep[col] = true
		}
	}
	out.Columns = make([]string, 0, len(keep))
	for col := range keep {
		out.Columns = append(out.Columns, col)
	}
	sort.Strings(out.Columns)

	rows := out.Rows[:0]
	for _, e := range out.Rows {
		if !keep[ColNearestGroceryTime] {
			e.NearestGroceryTime = math.NaN()
		}
		if !keep[ColPageRank] {
			e.PageRank = math.NaN()
		}
		for k := range e.Tags {
			if !keep[k] {
				delete(e.Tags, k)
			}
		}
		if !edgeComplete(e, keep) {
			continue
		}
		rows = append(rows, e)
	}
	out.Rows = rows

	classes := make(map[string]struct{})
	for i, e := range out.Rows {
		hw := make(map[string]float64, len(e.Highway))
		for _, class := range e.Highway {
			col := class + HighwaySuffix
			hw[col]++
			classes[col] = struct{}{}
		}
		out.Rows[i].Highways = hw
		out.Rows[i].Highway = nil
	}
	out.HighwayColumns = make([]string, 0, len(classes))
	for c := range classes {
		out.HighwayColumns = append(out.HighwayColumns, c)
	}
	sort.Strings(out.HighwayColumns)
	return out
}

func edgeComplete(e EdgeRecord, keep map[string]bool) bool {
	if !finite(e.Length) || !finite(e.SpeedKPH) || !finite(e.TravelTime) {
		return false
	}
	if len(e.Geometry) < 2 || len(e.Highway) == 0 {
		return false
	}
	if keep[ColNearestGroceryTime] && !finite(e.NearestGroceryTime) {
		return false
	}
	if keep[ColPageRank] && !finite(e.PageRank) {
		return false
	}
	for col := range keep {
		if col == ColNearestGroceryTime || col == ColPageRank {
			continue
		}
		if e.Tags[col] == "" {
			return false
		}
	}
	return true
}

// CleanNodes removes join artifacts, normalises infinite values to NaN and
// drops rows missing a required field. Required fields are position,
// PageRank, betweenness, and travel time to food when any node has one.
// Demographic fields are optional and keep NaN as the missing marker.
func CleanNodes(nodes NodeTable) NodeTable {
	out := nodes.Clone()
	requireTime := nodes.HasTravelTime()

	rows := out.Rows[:0]
	for _, n := range out.Rows {
		for _, k := range nodeArtifactTags {
			delete(n.Tags, k)
		}
		if len(n.Tags) == 0 {
			n.Tags = nil
		}
		n.X, n.Y = normalize(n.X), normalize(n.Y)
		n.NearestGroceryTime = normalize(n.NearestGroceryTime)
		n.PageRank = normalize(n.PageRank)
		n.Betweenness = normalize(n.Betweenness)
		for k, v := range n.Demographics {
			n.Demographics[k] = normalize(v)
		}

		if math.IsNaN(n.X) || math.IsNaN(n.Y) || math.IsNaN(n.PageRank) || math.IsNaN(n.Betweenness) {
			continue
		}
		if requireTime && math.IsNaN(n.NearestGroceryTime) {
			continue
		}
		rows = append(rows, n)
	}
	out.Rows = rows
	return out
}

// Reconcile keeps only nodes that appear both as an edge source and as an
// edge target, and only edges whose endpoints both survive.
func Reconcile(nodes NodeTable, edges EdgeTable) (NodeTable, EdgeTable) {
	sources := make(map[int64]bool, len(edges.Rows))
	targets := make(map[int64]bool, len(edges.Rows))
	for _, e := range edges.Rows {
		sources[e.U] = true
		targets[e.V] = true
	}
	complete := make(map[int64]bool, len(nodes.Rows))
	for _, n := range nodes.Rows {
		if sources[n.ID] && targets[n.ID] {
			complete[n.ID] = true
		}
	}

	outNodes := nodes.Clone()
	keptNodes := outNodes.Rows[:0]
	for _, n := range outNodes.Rows {
		if complete[n.ID] {
			keptNodes = append(keptNodes, n)
		}
	}
	outNodes.Rows = keptNodes

	outEdges := edges.Clone()
	keptEdges := outEdges.Rows[:0]
	for _, e := range outEdges.Rows {
		if complete[e.U] && complete[e.V] {
			keptEdges = append(keptEdges, e)
		}
	}
	outEdges.Rows = keptEdges
	return outNodes, outEdges
}

// AggregateHighways sums the highway indicator columns of the edges leaving
// each node onto that node. Nodes with no outgoing edge get no indicators.
func AggregateHighways(nodes NodeTable, edges EdgeTable) NodeTable {
	sums := make(map[int64]map[string]float64)
	for _, e := range edges.Rows {
		s, ok := sums[e.U]
		if !ok {
			s = make(map[string]float64, len(edges.HighwayColumns))
			for _, col := range edges.HighwayColumns {
				s[col] = 0
			}
			sums[e.U] = s
		}
		for col, v := range e.Highways {
			s[col] += v
		}
	}
	out := nodes.Clone()
	for i, n := range out.Rows {
		out.Rows[i].Highways = sums[n.ID]
	}
	return out
}

func normalize(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
