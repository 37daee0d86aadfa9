package access

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/geometry"
	"github.com/sells-group/food-access-cli/internal/graph"
	"github.com/sells-group/food-access-cli/internal/monitoring"
	"github.com/sells-group/food-access-cli/internal/network"
	"github.com/sells-group/food-access-cli/internal/poi"
	"github.com/sells-group/food-access-cli/internal/svi"
	"github.com/sells-group/food-access-cli/pkg/geocode"
)

// Geocoder resolves a place name to its representative point.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (*geocode.Result, error)
}

// POISource retrieves a POI tier inside a region.
type POISource interface {
	FetchRegion(ctx context.Context, region orb.Geometry, tier poi.Tier, centroids bool) (poi.Collection, error)
}

// NetworkSource builds the drivable street network of a region.
type NetworkSource interface {
	Build(ctx context.Context, region orb.Polygon) (*network.Graph, error)
}

// DemographicSource reads demographic tracts overlapping a region.
type DemographicSource interface {
	ReadRegion(region orb.Geometry) (svi.Collection, error)
}

// Options tunes a pipeline run.
type Options struct {
	RadiusM           float64
	BufferM           float64
	PageRank          graph.PageRankOptions
	Betweenness       graph.BetweennessOptions
	DemographicFields []string
	// GroceryTier is the POI tier treated as groceries.
	GroceryTier       poi.Tier
	// Network records how the road source builds graphs. The pipeline does
	// not apply it; it identifies results built under different settings.
	Network           network.Options
}

// DefaultOptions returns a 10 km area of analysis with a 5 km buffer.
func DefaultOptions() Options {
	return Options{
		RadiusM:           10_000,
		BufferM:           5_000,
		PageRank:          graph.DefaultPageRankOptions(),
		Betweenness:       graph.DefaultBetweennessOptions(),
		DemographicFields: DefaultDemographicFields,
		GroceryTier:       poi.Primary,
		Network:           network.DefaultOptions(),
	}
}

// Bundle is the result of one place.
type Bundle struct {
	Place          string
	RadiusM        float64
	BufferM        float64
	AreaOfAnalysis orb.Polygon
	QueryScope     orb.Polygon
	CenterLat      float64
	CenterLon      float64
	Graph          *network.Graph
	Groceries      poi.Collection
	Demographics   svi.Collection
	Nodes          NodeTable
	Edges          EdgeTable
	Warnings       []string
}

// Empty reports whether the bundle has no accessibility data.
func (b *Bundle) Empty() bool { return b == nil || b.Edges.Len() == 0 }

// Inputs are the retrieved layers of one place.
type Inputs struct {
	Network        *network.Graph
	Groceries      poi.Collection
	Demographics   svi.Collection
	AreaOfAnalysis orb.Polygon
}

// Result is the output of Fuse.
type Result struct {
	Graph    *network.Graph
	Nodes    NodeTable
	Edges    EdgeTable
	Warnings []string
}

// Pipeline runs the fusion for one place at a time. It holds no per-run
// state and is safe for concurrent use when its collaborators are.
type Pipeline struct {
	geocoder     Geocoder
	pois         POISource
	roads        NetworkSource
	demographics DemographicSource
	opts         Options
	metrics      *monitoring.Registry
}

// NewPipeline creates a Pipeline. demographics may be nil, in which case
// no tract fields are joined.
func NewPipeline(g Geocoder, pois POISource, roads NetworkSource, demographics DemographicSource, opts Options) *Pipeline {
	if opts.RadiusM <= 0 {
		opts.RadiusM = DefaultOptions().RadiusM
	}
	if opts.BufferM < 0 {
		opts.BufferM = 0
	}
	if len(opts.DemographicFields) == 0 {
		opts.DemographicFields = DefaultDemographicFields
	}
	if opts.GroceryTier == 0 {
		opts.GroceryTier = poi.Primary
	}
	return &Pipeline{
		geocoder:     g,
		pois:         pois,
		roads:        roads,
		demographics: demographics,
		opts:         opts,
		metrics:      monitoring.DefaultRegistry(),
	}
}

// WithMetrics returns a copy of the pipeline recording into r.
func (p *Pipeline) WithMetrics(r *monitoring.Registry) *Pipeline {
	cp := *p
	cp.metrics = r
	return &cp
}

// Options returns the run options.
func (p *Pipeline) Options() Options { return p.opts }

// Run geocodes place, retrieves its layers and fuses them. A place with no
// qualifying roads yields a bundle with empty tables and a warning, not an
// error. Retrieval failures are returned unchanged for the caller to retry.
func (p *Pipeline) Run(ctx context.Context, place string) (*Bundle, error) {
	log := zap.L().With(zap.String("place", place))
	start := time.Now()

	var center *geocode.Result
	err := p.timed(log, "geocode", func() error {
		var err error
		center, err = p.geocoder.Geocode(ctx, place)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "access: geocode %q", place)
	}

	b := &Bundle{
		Place:     place,
		RadiusM:   p.opts.RadiusM,
		BufferM:   p.opts.BufferM,
		CenterLat: center.Latitude,
		CenterLon: center.Longitude,
	}
	b.AreaOfAnalysis, err = geometry.CircularRegionLonLat(center.Longitude, center.Latitude, p.opts.RadiusM)
	if err != nil {
		return nil, err
	}
	b.QueryScope, err = geometry.CircularRegionLonLat(center.Longitude, center.Latitude, p.opts.RadiusM+p.opts.BufferM)
	if err != nil {
		return nil, err
	}

	err = p.timed(log, "fetch_groceries", func() error {
		var err error
		b.Groceries, err = p.pois.FetchRegion(ctx, b.QueryScope, p.opts.GroceryTier, true)
		return err
	})
	switch {
	case errors.Is(err, apperr.ErrEmptyResult):
		b.Groceries = poi.Collection{CRS: geometry.WGS84}
		b.Warnings = append(b.Warnings, "no groceries found in query scope")
	case err != nil:
		return nil, eris.Wrap(err, "access: fetch groceries")
	}

	var roads *network.Graph
	err = p.timed(log, "build_network", func() error {
		var err error
		roads, err = p.roads.Build(ctx, b.QueryScope)
		return err
	})
	switch {
	case errors.Is(err, apperr.ErrEmptyResult):
		log.Warn("access: no qualifying roads, returning empty tables")
		b.Warnings = append(b.Warnings, "no qualifying roads in query scope")
		b.Graph = &network.Graph{CRS: geometry.WGS84}
		b.Nodes = NodeTable{CRS: geometry.WGS84}
		b.Edges = EdgeTable{CRS: geometry.WGS84}
		return b, nil
	case err != nil:
		return nil, eris.Wrap(err, "access: build network")
	}

	b.Demographics = svi.Collection{CRS: geometry.WGS84}
	if p.demographics != nil {
		err = p.timed(log, "read_demographics", func() error {
			var err error
			b.Demographics, err = p.demographics.ReadRegion(b.QueryScope)
			return err
		})
		if err != nil {
			return nil, eris.Wrap(err, "access: read demographics")
		}
	}
	if b.Demographics.Len() == 0 {
		b.Warnings = append(b.Warnings, "no demographic coverage in query scope")
	}

	res, err := p.fuse(log, Inputs{
		Network:        roads,
		Groceries:      b.Groceries,
		Demographics:   b.Demographics,
		AreaOfAnalysis: b.AreaOfAnalysis,
	})
	if err != nil {
		return nil, err
	}
	b.Graph, b.Nodes, b.Edges = res.Graph, res.Nodes, res.Edges
	b.Warnings = append(b.Warnings, res.Warnings...)

	log.Info("access: place complete",
		zap.Int("nodes", b.Nodes.Len()),
		zap.Int("edges", b.Edges.Len()),
		zap.Int("groceries", b.Groceries.Len()),
		zap.Int("warnings", len(b.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return b, nil
}

// Fuse runs the fusion steps over already retrieved layers.
func (p *Pipeline) Fuse(in Inputs) (*Result, error) {
	return p.fuse(zap.L(), in)
}

func (p *Pipeline) fuse(log *zap.Logger, in Inputs) (*Result, error) {
	res := &Result{}
	if in.Network.Empty() {
		crs := geometry.WGS84
		if in.Network != nil && in.Network.CRS != nil {
			crs = in.Network.CRS
		}
		res.Graph = &network.Graph{CRS: crs}
		res.Nodes = NodeTable{CRS: crs}
		res.Edges = EdgeTable{CRS: crs}
		res.Warnings = append(res.Warnings, "empty network")
		return res, nil
	}

	nodes, edges, err := TablesFromGraph(in.Network)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordGraphSize("raw", nodes.Len())

	// degrade records a non-fatal step error as a warning.
	degrade := func(step string, err error) error {
		if err == nil {
			return nil
		}
		if apperr.IsFatal(err) {
			return eris.Wrapf(err, "access: %s", step)
		}
		log.Warn("access: step degraded", zap.String("step", step), zap.Error(err))
		res.Warnings = append(res.Warnings, err.Error())
		return nil
	}

	err = p.timed(log, "attach_groceries", func() error {
		var groceries []orb.Point
		if in.Groceries.Len() > 0 {
			var err error
			if groceries, err = in.Groceries.Points(); err != nil {
				return err
			}
		}
		crs := in.Groceries.CRS
		if crs == nil {
			crs = geometry.WGS84
		}
		var err error
		nodes, err = AttachGroceries(nodes, groceries, crs)
		if err != nil {
			return err
		}
		return checkUnique(nodes, edges, "access.attach_groceries")
	})
	if err != nil {
		return nil, err
	}

	var routing *graph.Graph
	if err := p.timed(log, "rebuild_graph", func() error {
		var err error
		routing, err = RoutingGraph(nodes, edges)
		return err
	}); err != nil {
		return nil, err
	}

	err = p.timed(log, "nearest_grocery_time", func() error {
		var err error
		nodes, err = NearestGroceryTime(nodes, routing)
		return degrade("nearest_grocery_time", err)
	})
	if err != nil {
		return nil, err
	}

	_ = p.timed(log, "importance", func() error {
		nodes = Importance(nodes, routing, p.opts.PageRank, p.opts.Betweenness)
		return nil
	})

	_ = p.timed(log, "project_edge_values", func() error {
		edges = ProjectEdgeValues(nodes, edges)
		return nil
	})

	err = p.timed(log, "flag_regions", func() error {
		var err error
		nodes, edges, err = FlagRegions(nodes, edges, in.AreaOfAnalysis)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.timed(log, "join_demographics", func() error {
		joined, err := JoinDemographics(nodes, in.Demographics, p.opts.DemographicFields)
		if derr := degrade("join_demographics", err); derr != nil {
			return derr
		}
		nodes = joined
		return checkUnique(nodes, edges, "access.join_demographics")
	})
	if err != nil {
		return nil, err
	}

	_ = p.timed(log, "clean", func() error {
		edges = CleanEdges(edges)
		nodes = CleanNodes(nodes)
		return nil
	})

	_ = p.timed(log, "reconcile", func() error {
		nodes, edges = Reconcile(nodes, edges)
		return nil
	})

	_ = p.timed(log, "aggregate_highways", func() error {
		nodes = AggregateHighways(nodes, edges)
		return nil
	})

	err = p.timed(log, "reassemble", func() error {
		var err error
		res.Graph, err = ToGraph(nodes, edges)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.RecordGraphSize("clean", nodes.Len())

	res.Nodes, res.Edges = nodes, edges
	return res, nil
}

// timed runs fn, logging and recording its duration under step.
func (p *Pipeline) timed(log *zap.Logger, step string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	p.metrics.ObserveStep(step, elapsed)
	log.Debug("access: step finished", zap.String("step", step), zap.Duration("elapsed", elapsed), zap.Bool("ok", err == nil))
	return err
}
