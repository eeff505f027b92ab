package normalize

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestCentroid_Point(t *testing.T) {
	lat, lng, ok := Centroid(orb.Point{153.0, -27.5})
	if !ok || lat != -27.5 || lng != 153.0 {
		t.Fatalf("point centroid = (%v, %v, %v)", lat, lng, ok)
	}
}

func TestCentroid_LineMidpoint(t *testing.T) {
	line := orb.LineString{{153.0, -27.0}, {153.1, -27.1}, {153.2, -27.2}}
	lat, lng, ok := Centroid(line)
	if !ok || lat != -27.1 || lng != 153.1 {
		t.Fatalf("line centroid = (%v, %v, %v), want middle vertex", lat, lng, ok)
	}
}

func TestCentroid_PolygonVertexAverage(t *testing.T) {
	poly := orb.Polygon{orb.Ring{
		{153.0, -27.0}, {153.2, -27.0}, {153.2, -27.2}, {153.0, -27.2}, {153.0, -27.0},
	}}
	lat, lng, ok := Centroid(poly)
	if !ok {
		t.Fatalf("polygon should yield a centroid")
	}
	if !near(lat, -27.1) || !near(lng, 153.1) {
		t.Fatalf("polygon centroid = (%v, %v), want vertex average excluding the closing point", lat, lng)
	}
}

func near(got, want float64) bool {
	d := got - want
	return d < 1e-9 && d > -1e-9
}

func TestCentroid_MultiUsesFirstMember(t *testing.T) {
	mp := orb.MultiPoint{{153.0, -27.5}, {140.0, -10.0}}
	lat, lng, ok := Centroid(mp)
	if !ok || lat != -27.5 || lng != 153.0 {
		t.Fatalf("multi centroid = (%v, %v, %v), want first member", lat, lng, ok)
	}
}

func TestCentroid_CollectionFirstPointBearing(t *testing.T) {
	coll := orb.Collection{
		orb.LineString{},
		orb.Point{153.0, -27.5},
	}
	lat, lng, ok := Centroid(coll)
	if !ok || lat != -27.5 || lng != 153.0 {
		t.Fatalf("collection centroid = (%v, %v, %v)", lat, lng, ok)
	}
}

func TestCentroid_EmptyShapes(t *testing.T) {
	if _, _, ok := Centroid(orb.LineString{}); ok {
		t.Fatalf("empty line should not yield a centroid")
	}
	if _, _, ok := Centroid(orb.Polygon{}); ok {
		t.Fatalf("empty polygon should not yield a centroid")
	}
	if _, _, ok := Centroid(orb.Collection{}); ok {
		t.Fatalf("empty collection should not yield a centroid")
	}
}
