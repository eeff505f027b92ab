// Package georegion classifies coordinates into named service regions.
//
// Regions cover South-East Queensland with coarse polygon boundaries, checked
// in declaration order; the first containing boundary wins. When no boundary
// matches, a locality-text fallback compares the caller's hint against region
// names and known sub-areas. Classification yields zero or one region
package georegion

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Region is a named service area with an optional polygon boundary
type Region struct {
	ID       string
	Name     string
	Boundary orb.Polygon
	SubAreas []string
}

// bbox builds a rectangular boundary ring from corner coordinates
func bbox(swLat, swLng, neLat, neLng float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{swLng, swLat},
		{neLng, swLat},
		{neLng, neLat},
		{swLng, neLat},
		{swLng, swLat},
	}}
}

// regions is the fixed region set, checked in declaration order
var regions = []Region{
	{
		ID: "brisbane", Name: "Brisbane",
		Boundary: bbox(-27.77, 152.75, -27.05, 153.30),
		SubAreas: []string{
			"brisbane city", "fortitude valley", "south brisbane", "west end",
			"chermside", "indooroopilly", "carindale", "mount gravatt",
		},
	},
	{
		ID: "gold-coast", Name: "Gold Coast",
		Boundary: bbox(-28.20, 153.15, -27.70, 153.58),
		SubAreas: []string{
			"surfers paradise", "southport", "broadbeach", "robina",
			"coolangatta", "nerang", "burleigh heads",
		},
	},
	{
		ID: "sunshine-coast", Name: "Sunshine Coast",
		Boundary: bbox(-26.90, 152.80, -26.35, 153.20),
		SubAreas: []string{"maroochydore", "caloundra", "noosa heads", "nambour", "mooloolaba"},
	},
	{
		ID: "ipswich", Name: "Ipswich",
		Boundary: bbox(-27.80, 152.55, -27.45, 152.90),
		SubAreas: []string{"springfield", "goodna", "booval", "ripley"},
	},
	{
		ID: "logan", Name: "Logan",
		Boundary: bbox(-27.90, 152.90, -27.55, 153.25),
		SubAreas: []string{"logan central", "springwood", "beenleigh", "shailer park"},
	},
	{
		ID: "moreton-bay", Name: "Moreton Bay",
		Boundary: bbox(-27.40, 152.75, -26.85, 153.15),
		SubAreas: []string{"caboolture", "redcliffe", "strathpine", "north lakes"},
	},
}

// All returns the fixed region set
func All() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// Known reports whether id names a region in the fixed set
func Known(id string) bool {
	for _, r := range regions {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Classify returns the first region containing (lat, lng). When no boundary
// matches, textFallback is compared case-insensitively against region names
// and sub-areas. The bool reports whether any region matched; never panics
func Classify(lat, lng float64, textFallback string) (Region, bool) {
	if lat != 0 || lng != 0 {
		pt := orb.Point{lng, lat}
		for _, r := range regions {
			if len(r.Boundary) > 0 && planar.PolygonContains(r.Boundary, pt) {
				return r, true
			}
		}
	}

	needle := strings.ToLower(strings.TrimSpace(textFallback))
	if needle == "" {
		return Region{}, false
	}
	for _, r := range regions {
		if strings.Contains(needle, strings.ToLower(r.Name)) {
			return r, true
		}
		for _, sub := range r.SubAreas {
			if strings.Contains(needle, sub) {
				return r, true
			}
		}
	}
	return Region{}, false
}

// ClassifyIDs adapts Classify to the slice shape incident records carry
func ClassifyIDs(lat, lng float64, textFallback string) []string {
	if r, ok := Classify(lat, lng, textFallback); ok {
		return []string{r.ID}
	}
	return nil
}
