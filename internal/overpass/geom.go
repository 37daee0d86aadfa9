package overpass

import (
	"github.com/paulmach/orb"
)

// Shape converts an element rendered with `out geom` into an orb
// geometry: nodes become points, closed ways polygons, open ways line
// strings and multipolygon relations the polygons of their closed outer
// members. ok is false when the element carries no usable geometry.
func (e Element) Shape() (g orb.Geometry, ok bool) {
	switch e.Type {
	case "node":
		return orb.Point{e.Lon, e.Lat}, true
	case "way":
		ls := lineString(e.Geometry)
		if len(ls) < 2 {
			return nil, false
		}
		if len(ls) >= 4 && ls[0] == ls[len(ls)-1] {
			return orb.Polygon{orb.Ring(ls)}, true
		}
		return ls, true
	case "relation":
		var mp orb.MultiPolygon
		var holes []orb.Ring
		for _, m := range e.Members {
			if m.Type != "way" {
				continue
			}
			ls := lineString(m.Geometry)
			if len(ls) < 4 || ls[0] != ls[len(ls)-1] {
				continue
			}
			switch m.Role {
			case "inner":
				holes = append(holes, orb.Ring(ls))
			default:
				mp = append(mp, orb.Polygon{orb.Ring(ls)})
			}
		}
		if len(mp) == 0 {
			return nil, false
		}
		for _, h := range holes {
			for i := range mp {
				if mp[i].Bound().Contains(h[0]) {
					mp[i] = append(mp[i], h)
					break
				}
			}
		}
		if len(mp) == 1 {
			return mp[0], true
		}
		return mp, true
	default:
		return nil, false
	}
}

func lineString(pts []LatLon) orb.LineString {
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}
