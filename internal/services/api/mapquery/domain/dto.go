// Package domain holds the map query DTOs and ports
package domain

import (
	"time"

	spdom "pulsemap/internal/services/spatial/domain"
)

// BBoxInput is the wire form of a bounding box
type BBoxInput struct {
	SWLat float64 `json:"sw_lat" validate:"gte=-90,lte=90"`
	SWLng float64 `json:"sw_lng" validate:"gte=-180,lte=180"`
	NELat float64 `json:"ne_lat" validate:"gte=-90,lte=90"`
	NELng float64 `json:"ne_lng" validate:"gte=-180,lte=180"`
}

// FilterInput carries the attribute filters shared by every query endpoint
type FilterInput struct {
	RegionID   string     `json:"region_id,omitempty"`
	Category   string     `json:"category,omitempty"`
	Source     string     `json:"source,omitempty" validate:"omitempty,oneof=road-traffic emergency-dispatch user-submitted"`
	Since      *time.Time `json:"since,omitempty"`
	ActiveOnly bool       `json:"active_only,omitempty"`
}

// QueryInput is the body of POST /map/query
type QueryInput struct {
	BBox *BBoxInput `json:"bbox,omitempty"`
	FilterInput
}

// ViewportInput is the body of POST /map/viewport
type ViewportInput struct {
	SWLat float64 `json:"sw_lat" validate:"gte=-90,lte=90"`
	SWLng float64 `json:"sw_lng" validate:"gte=-180,lte=180"`
	NELat float64 `json:"ne_lat" validate:"gte=-90,lte=90"`
	NELng float64 `json:"ne_lng" validate:"gte=-180,lte=180"`
	FilterInput
}

// NearInput is the body of POST /map/near
type NearInput struct {
	Lat      float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng      float64 `json:"lng" validate:"gte=-180,lte=180"`
	RadiusKm float64 `json:"radius_km" validate:"required,gt=0,lte=500"`
	FilterInput
}

// Filter converts the shared attribute filters to the engine shape
func (f FilterInput) Filter() spdom.Filter {
	out := spdom.Filter{
		RegionID:   f.RegionID,
		Category:   f.Category,
		Source:     f.Source,
		ActiveOnly: f.ActiveOnly,
	}
	if f.Since != nil {
		out.Since = *f.Since
	}
	return out
}

// Filter converts the full query input including its optional box
func (q QueryInput) Filter() spdom.Filter {
	out := q.FilterInput.Filter()
	if q.BBox != nil {
		out.BBox = &spdom.BoundingBox{
			SWLat: q.BBox.SWLat,
			SWLng: q.BBox.SWLng,
			NELat: q.BBox.NELat,
			NELng: q.BBox.NELng,
		}
	}
	return out
}
