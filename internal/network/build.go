package network

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/overpass"
)

// RoadSource is the external road-network collaborator.
type RoadSource interface {
	Roads(ctx context.Context, area orb.Polygon, pattern string) (*overpass.Roads, error)
}

// Options tunes network construction.
type Options struct {
	// Filter is the highway class pattern; DriveFilter when empty.
	Filter string
	// ConsolidateTolerance merges intersections whose nodes lie within
	// this many meters of each other's buffer. Zero disables consolidation.
	ConsolidateTolerance float64
	// KeepDeadEnds keeps degree-one nodes through consolidation.
	KeepDeadEnds bool
	// Speeds overrides the fallback free-flow speeds per highway class.
	Speeds map[string]float64
}

// DefaultOptions returns a 10 m consolidation tolerance on the drive filter.
func DefaultOptions() Options {
	return Options{Filter: overpass.DriveFilter, ConsolidateTolerance: 10}
}

// Builder turns raw road data into a routable graph.
type Builder struct {
	source RoadSource
	opts   Options
}

// NewBuilder creates a Builder.
func NewBuilder(source RoadSource, opts Options) *Builder {
	if opts.Filter == "" {
		opts.Filter = overpass.DriveFilter
	}
	return &Builder{source: source, opts: opts}
}

// wayTags are the OSM way tags carried onto edges.
var wayTags = []string{"name", "maxspeed", "lanes", "ref", "bridge", "tunnel", "junction", "access", "width", "oneway"}

// Build retrieves the roads inside region and returns the simplified,
// consolidated network in WGS84 with speeds and travel times. A region
// without qualifying roads returns ErrEmptyNetwork.
func (b *Builder) Build(ctx context.Context, region orb.Polygon) (*Graph, error) {
	log := zap.L().With(zap.String("component", "network"))
	start := time.Now()

	raw, err := b.source.Roads(ctx, region, b.opts.Filter)
	if err != nil {
		if errors.Is(err, apperr.ErrEmptyResult) {
			log.Warn("no qualifying roads in region")
			return nil, ErrEmptyNetwork
		}
		return nil, eris.Wrap(err, "network: retrieve roads")
	}

	g := FromRoads(raw, b.opts.Filter)
	g = LargestComponent(g)
	if g.Empty() {
		log.Warn("no qualifying roads in region")
		return nil, ErrEmptyNetwork
	}
	g = Simplify(g)

	projected, err := g.Project(geometry.ConusAlbers)
	if err != nil {
		return nil, err
	}
	if b.opts.ConsolidateTolerance > 0 {
		projected = Consolidate(projected, b.opts.ConsolidateTolerance, b.opts.KeepDeadEnds)
	}
	if projected.Empty() {
		log.Warn("network vanished during consolidation")
		return nil, ErrEmptyNetwork
	}
	AddEdgeSpeeds(projected, b.opts.Speeds)
	AddTravelTimes(projected)

	out, err := projected.Project(geometry.WGS84)
	if err != nil {
		return nil, err
	}
	log.Info("network built",
		zap.Int("nodes", len(out.Nodes)),
		zap.Int("edges", len(out.Edges)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// BuildFromPoint builds the network inside a circle of distM meters.
func (b *Builder) BuildFromPoint(ctx context.Context, lat, lon, distM float64) (*Graph, error) {
	region, err := geometry.CircularRegionLonLat(lon, lat, distM)
	if err != nil {
		return nil, err
	}
	return b.Build(ctx, region)
}

// FromRoads converts raw OSM ways into an unsimplified directed graph in
// WGS84, one edge per consecutive node pair. Two-way streets get an edge in
// each direction; the reverse one is flagged Reversed.
func FromRoads(raw *overpass.Roads, pattern string) *Graph {
	g := &Graph{CRS: geometry.WGS84}
	if raw == nil {
		return g
	}
	classes := strings.Split(pattern, "|")

	used := make(map[int64]struct{})
	for _, w := range raw.Ways {
		hw := w.Tags["highway"]
		if !matchesClass(hw, classes) {
			continue
		}
		oneway, reverse := onewayOf(w.Tags)
		nodes := w.Nodes
		if reverse {
			nodes = reversed(nodes)
		}
		tags := make(map[string]string)
		for _, k := range wayTags {
			if v, ok := w.Tags[k]; ok {
				tags[k] = v
			}
		}

		for i := 0; i+1 < len(nodes); i++ {
			a, aok := raw.Nodes[nodes[i]]
			c, cok := raw.Nodes[nodes[i+1]]
			if !aok || !cok {
				continue
			}
			ls := orb.LineString{{a.Lon, a.Lat}, {c.Lon, c.Lat}}
			e := Edge{
				U:        a.ID,
				V:        c.ID,
				OSMIDs:   []int64{w.ID},
				Highway:  []string{hw},
				Oneway:   oneway,
				Length:   geo.DistanceHaversine(ls[0], ls[1]),
				Geometry: ls,
				Tags:     tags,
			}
			g.Edges = append(g.Edges, e)
			if !oneway {
				r := e
				r.U, r.V = e.V, e.U
				r.Reversed = true
				r.Geometry = orb.LineString{ls[1], ls[0]}
				g.Edges = append(g.Edges, r)
			}
			used[a.ID] = struct{}{}
			used[c.ID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := raw.Nodes[id]
		node := Node{ID: id, X: n.Lon, Y: n.Lat}
		for _, k := range []string{"highway", "ref"} {
			if v, ok := n.Tags[k]; ok {
				if node.Tags == nil {
					node.Tags = make(map[string]string)
				}
				node.Tags[k] = v
			}
		}
		g.Nodes = append(g.Nodes, node)
	}
	rekey(g.Edges)
	countStreets(g)
	return g
}

// matchesClass applies the unanchored class pattern, so "primary" also
// admits "primary_link".
func matchesClass(hw string, classes []string) bool {
	if hw == "" {
		return false
	}
	for _, c := range classes {
		if c != "" && strings.Contains(hw, c) {
			return true
		}
	}
	return false
}

func onewayOf(tags map[string]string) (oneway, reverse bool) {
	switch tags["oneway"] {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return true, true
	case "no", "false", "0":
		return false, false
	}
	if tags["junction"] == "roundabout" {
		return true, false
	}
	return false, false
}

func reversed(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

// LargestComponent keeps the largest weakly connected component.
func LargestComponent(g *Graph) *Graph {
	if len(g.Nodes) == 0 {
		return g
	}
	uf := newUnionFind(g.Nodes)
	for _, e := range g.Edges {
		uf.union(e.U, e.V)
	}
	sizes := make(map[int64]int)
	for _, n := range g.Nodes {
		sizes[uf.find(n.ID)]++
	}
	var best int64
	bestSize := -1
	for root, size := range sizes {
		if size > bestSize || (size == bestSize && root < best) {
			best, bestSize = root, size
		}
	}
	if bestSize == len(g.Nodes) {
		return g
	}

	out := &Graph{CRS: g.CRS}
	for _, n := range g.Nodes {
		if uf.find(n.ID) == best {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if uf.find(e.U) == best {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind(nodes []Node) *unionFind {
	uf := &unionFind{parent: make(map[int64]int64, len(nodes))}
	for _, n := range nodes {
		uf.parent[n.ID] = n.ID
	}
	return uf
}

func (u *unionFind) find(x int64) int64 {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union links the two sets, keeping the smaller identifier as root.
func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
