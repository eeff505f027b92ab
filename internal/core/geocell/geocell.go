// Package geocell quantizes coordinates into fixed-size grid cell keys.
//
// Cells are used two ways: every incident is tagged with the cell containing
// its centroid, and spatial queries enumerate the cells covering a bounding
// box to pre-filter candidates before exact comparison.
package geocell

import (
	"fmt"
	"math"
)

// DefaultPrecision is the number of decimal places a cell edge spans (10^-3 degrees)
const DefaultPrecision = 3

// step returns the cell edge length in degrees for a precision
func step(precision int) float64 {
	return math.Pow(10, float64(-precision))
}

// index floor-divides a coordinate into its quantized integer index
func index(v float64, precision int) int64 {
	return int64(math.Floor(v / step(precision)))
}

// Cell returns the grid cell key containing (lat, lng) at the given precision.
// Deterministic and side-effect free: identical inputs always yield an
// identical key, and any two points within the same quantization step share one
func Cell(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return fmt.Sprintf("p%d:%d:%d", precision, index(lat, precision), index(lng, precision))
}

// CoverSize returns how many cells Cover would enumerate for the box, without
// allocating them. Inverted boxes report zero
func CoverSize(swLat, swLng, neLat, neLng float64, precision int) int64 {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	latLo, latHi := index(swLat, precision), index(neLat, precision)
	lngLo, lngHi := index(swLng, precision), index(neLng, precision)
	if latHi < latLo || lngHi < lngLo {
		return 0
	}
	return (latHi - latLo + 1) * (lngHi - lngLo + 1)
}

// Cover enumerates every cell whose quantized coordinates fall within the
// bounding box, iterating lat then lng in step increments. Cost is
// O(cells-in-box); callers must check CoverSize first and fall back to a
// linear scan for boxes too large to enumerate
func Cover(swLat, swLng, neLat, neLng float64, precision int) []string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	latLo, latHi := index(swLat, precision), index(neLat, precision)
	lngLo, lngHi := index(swLng, precision), index(neLng, precision)
	if latHi < latLo || lngHi < lngLo {
		return nil
	}

	out := make([]string, 0, (latHi-latLo+1)*(lngHi-lngLo+1))
	for la := latLo; la <= latHi; la++ {
		for ln := lngLo; ln <= lngHi; ln++ {
			out = append(out, fmt.Sprintf("p%d:%d:%d", precision, la, ln))
		}
	}
	return out
}
