package normalize

import (
	"github.com/paulmach/orb"
)

// Centroid derives the representative point for a geometry. The rules favor
// cheap determinism over geometric exactness:
//
//   - point: the point itself
//   - line string: midpoint of the vertex list
//   - polygon: vertex average of the outer ring (closing vertex excluded)
//   - multi types: first member, recursively
//   - collection: first member that yields a point
//
// ok is false when no point can be derived; callers drop those records
func Centroid(g orb.Geometry) (lat, lng float64, ok bool) {
	switch t := g.(type) {
	case orb.Point:
		return t.Lat(), t.Lon(), true

	case orb.LineString:
		if len(t) == 0 {
			return 0, 0, false
		}
		mid := t[len(t)/2]
		return mid.Lat(), mid.Lon(), true

	case orb.Polygon:
		if len(t) == 0 || len(t[0]) == 0 {
			return 0, 0, false
		}
		ring := t[0]
		n := len(ring)
		if n > 1 && ring[0] == ring[n-1] {
			n--
		}
		var sumLat, sumLng float64
		for _, p := range ring[:n] {
			sumLat += p.Lat()
			sumLng += p.Lon()
		}
		return sumLat / float64(n), sumLng / float64(n), true

	case orb.MultiPoint:
		if len(t) == 0 {
			return 0, 0, false
		}
		return Centroid(t[0])

	case orb.MultiLineString:
		if len(t) == 0 {
			return 0, 0, false
		}
		return Centroid(t[0])

	case orb.MultiPolygon:
		if len(t) == 0 {
			return 0, 0, false
		}
		return Centroid(t[0])

	case orb.Collection:
		for _, member := range t {
			if la, ln, mok := Centroid(member); mok {
				return la, ln, true
			}
		}
		return 0, 0, false

	default:
		return 0, 0, false
	}
}

// validCoords reports whether a centroid is inside coordinate ranges
func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
