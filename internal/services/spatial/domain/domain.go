// Package domain defines the spatial query contracts
package domain

import (
	"time"

	incdom "pulsemap/internal/services/incidents/domain"
)

// BoundingBox is a lat/lng rectangle. SW must not exceed NE on either axis
type BoundingBox struct {
	SWLat float64 `json:"sw_lat"`
	SWLng float64 `json:"sw_lng"`
	NELat float64 `json:"ne_lat"`
	NELng float64 `json:"ne_lng"`
}

// Inverted reports whether the corners are swapped on either axis
func (b BoundingBox) Inverted() bool {
	return b.SWLat > b.NELat || b.SWLng > b.NELng
}

// Contains reports whether (lat, lng) falls inside the box, edges inclusive
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.SWLat && lat <= b.NELat && lng >= b.SWLng && lng <= b.NELng
}

// Filter narrows a spatial query. Zero-valued fields are ignored
type Filter struct {
	BBox       *BoundingBox
	RegionID   string
	Category   string
	Source     string
	Since      time.Time
	ActiveOnly bool
}

// Stats reports per-stage surviving counts for one query
type Stats struct {
	Stage1     int `json:"stage1"`
	Stage2     int `json:"stage2"`
	Stage3     int `json:"stage3"`
	TotalFound int `json:"total_found"`
}

// Result is one query's outcome
type Result struct {
	Incidents []incdom.Incident `json:"incidents"`
	Stats     Stats             `json:"stats"`
	CacheHit  bool              `json:"cache_hit"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// CacheStats exposes the cumulative cache counters
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}
