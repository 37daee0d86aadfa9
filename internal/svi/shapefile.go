package svi

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// readShapefile returns the records whose bounding box overlaps bound.
func (r *Reader) readShapefile(bound orb.Bound) ([]Record, error) {
	reader, err := shp.Open(r.opts.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "svi: open shapefile %s", r.opts.Path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	idIdx := -1
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(names[i], r.opts.IDField) {
			idIdx = i
		}
	}

	var records []Record
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		box := poly.BBox()
		if !bound.Intersects(orb.Bound{Min: orb.Point{box.MinX, box.MinY}, Max: orb.Point{box.MaxX, box.MaxY}}) {
			continue
		}

		rec := Record{Geometry: polygonToMulti(poly), Fields: make(map[string]float64)}
		if idIdx >= 0 {
			rec.GEOID = strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(n, idIdx), "\x00"))
		}
		for i, name := range names {
			if i == idIdx || !r.wanted(name) {
				continue
			}
			if v, ok := parseValue(reader.ReadAttribute(n, i)); ok {
				rec.Fields[name] = v
			}
		}
		if len(rec.Geometry) == 0 {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		zap.L().Debug("svi: skipped shapefile records", zap.Int("skipped", skipped))
	}
	return records, nil
}

// polygonToMulti splits shapefile parts into polygons. Clockwise rings are
// outer boundaries; counter-clockwise rings are holes of the outer ring that
// contains them.
func polygonToMulti(p *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			holes = append(holes, ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	for _, h := range holes {
		placed := false
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			mp[len(mp)-1] = append(mp[len(mp)-1], h)
		}
	}
	return mp
}
