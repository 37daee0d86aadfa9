// Package store exports accessibility results to PostGIS.
package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/db"
	"github.com/sells-group/food-access-cli/internal/geometry"
)

// Exporter writes result bundles into the food_access schema. Each export
// replaces the rows of its place.
type Exporter struct {
	pool    db.Pool
	closeFn func()
}

// NewExporter wraps an existing pool. The caller owns the pool.
func NewExporter(pool db.Pool) *Exporter {
	return &Exporter{pool: pool, closeFn: func() {}}
}

// NewPostgres connects to databaseURL and returns an Exporter owning the pool.
func NewPostgres(ctx context.Context, databaseURL string, cfg db.PoolConfig) (*Exporter, error) {
	pool, err := db.Connect(ctx, databaseURL, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect")
	}
	return &Exporter{pool: pool, closeFn: pool.Close}, nil
}

// Close releases the pool when the exporter owns it.
func (e *Exporter) Close() {
	if e.closeFn != nil {
		e.closeFn()
	}
}

// Migrate creates the PostGIS extension, schema and tables if missing.
func (e *Exporter) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := e.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "store: migration %d", i)
		}
	}
	return nil
}

// ExportStats counts the rows written for one place.
type ExportStats struct {
	Nodes int64
	Edges int64
}

// Export writes the node and edge tables of b, then records the place.
// Tables in a projected CRS are converted to lon/lat first.
func (e *Exporter) Export(ctx context.Context, runID uuid.UUID, b *access.Bundle) (ExportStats, error) {
	var stats ExportStats
	if b == nil || b.Place == "" {
		return stats, apperr.InvalidInput("store.export", "bundle with a place name is required")
	}
	log := zap.L().With(zap.String("component", "store.export"), zap.String("place", b.Place))
	start := time.Now()

	nodeRows, err := nodeRows(b.Place, b.Nodes)
	if err != nil {
		return stats, err
	}
	edgeRows, err := edgeRows(b.Place, b.Edges)
	if err != nil {
		return stats, err
	}

	stats.Nodes, err = db.ReplaceRows(ctx, e.pool, db.ReplaceConfig{
		Table: nodesTable, Columns: nodeColumns, KeyColumn: "place", KeyValue: b.Place,
	}, nodeRows)
	if err != nil {
		return stats, eris.Wrap(err, "store: export nodes")
	}
	stats.Edges, err = db.ReplaceRows(ctx, e.pool, db.ReplaceConfig{
		Table: edgesTable, Columns: edgeColumns, KeyColumn: "place", KeyValue: b.Place,
	}, edgeRows)
	if err != nil {
		return stats, eris.Wrap(err, "store: export edges")
	}

	if err := e.recordPlace(ctx, runID, b); err != nil {
		return stats, err
	}

	log.Info("exported place",
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("edges", stats.Edges),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

func (e *Exporter) recordPlace(ctx context.Context, runID uuid.UUID, b *access.Bundle) error {
	center, err := encodePoint(orb.Point{b.CenterLon, b.CenterLat})
	if err != nil {
		return err
	}
	aoa, err := encodePolygon(b.AreaOfAnalysis)
	if err != nil {
		return err
	}
	warnings := b.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err = e.pool.Exec(ctx, `
		INSERT INTO food_access.places (place, run_id, radius_m, buffer_m, center, aoa, node_count, edge_count, warnings, exported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (place) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			radius_m = EXCLUDED.radius_m,
			buffer_m = EXCLUDED.buffer_m,
			center = EXCLUDED.center,
			aoa = EXCLUDED.aoa,
			node_count = EXCLUDED.node_count,
			edge_count = EXCLUDED.edge_count,
			warnings = EXCLUDED.warnings,
			exported_at = now()`,
		b.Place, runID, b.RadiusM, b.BufferM, center, aoa, b.Nodes.Len(), b.Edges.Len(), warnings,
	)
	if err != nil {
		return eris.Wrapf(err, "store: record place %q", b.Place)
	}
	return nil
}

// PlaceRecord summarises one exported place.
type PlaceRecord struct {
	Place      string
	RunID      uuid.UUID
	NodeCount  int
	EdgeCount  int
	Warnings   []string
	ExportedAt time.Time
}

// Places lists exported places, most recent first.
func (e *Exporter) Places(ctx context.Context) ([]PlaceRecord, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT place, run_id, node_count, edge_count, warnings, exported_at
		FROM food_access.places
		ORDER BY exported_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list places")
	}
	defer rows.Close()

	var out []PlaceRecord
	for rows.Next() {
		var r PlaceRecord
		if err := rows.Scan(&r.Place, &r.RunID, &r.NodeCount, &r.EdgeCount, &r.Warnings, &r.ExportedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan place")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate places")
}

func nodeRows(place string, t access.NodeTable) ([][]any, error) {
	rows := make([][]any, 0, t.Len())
	for _, n := range t.Rows {
		p, err := toLonLat(n.Point(), t.CRS)
		if err != nil {
			return nil, err
		}
		g, err := encodePoint(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{
			place, n.ID, n.Grocery, nullable(n.NearestGroceryTime), nullable(n.PageRank), nullable(n.Betweenness),
			n.AOA, n.Buffer, finiteValues(n.Demographics), finiteValues(n.Highways), g,
		})
	}
	return rows, nil
}

func edgeRows(place string, t access.EdgeTable) ([][]any, error) {
	rows := make([][]any, 0, t.Len())
	for _, e := range t.Rows {
		ls := e.Geometry
		if t.CRS != nil && t.CRS.Name() != geometry.WGS84.Name() && len(ls) > 0 {
			projected, err := geometry.Transform(ls, t.CRS, geometry.WGS84)
			if err != nil {
				return nil, eris.Wrapf(err, "store: reproject edge %d-%d", e.U, e.V)
			}
			ls = projected.(orb.LineString)
		}
		g, err := encodeLineString(ls)
		if err != nil {
			return nil, err
		}
		var tags map[string]string
		if len(e.Tags) > 0 {
			tags = e.Tags
		}
		rows = append(rows, []any{
			place, e.U, e.V, e.Key, e.Length, e.SpeedKPH, e.TravelTime,
			nullable(e.NearestGroceryTime), nullable(e.PageRank), e.AOA, e.Buffer,
			tags, finiteValues(e.Highways), g,
		})
	}
	return rows, nil
}

func toLonLat(p orb.Point, crs geometry.CRS) (orb.Point, error) {
	if crs == nil || crs.Name() == geometry.WGS84.Name() {
		return p, nil
	}
	out, err := geometry.TransformPoint(p, crs, geometry.WGS84)
	if err != nil {
		return orb.Point{}, eris.Wrap(err, "store: reproject node")
	}
	return out, nil
}

// nullable maps NaN and infinities to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// finiteValues drops missing entries so the map encodes as JSON.
func finiteValues(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
