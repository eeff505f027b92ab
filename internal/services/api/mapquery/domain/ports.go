package domain

import (
	"context"

	incdom "pulsemap/internal/services/incidents/domain"
	spdom "pulsemap/internal/services/spatial/domain"
)

// QueryPort is the spatial engine surface the handlers call
type QueryPort interface {
	Query(f spdom.Filter) (spdom.Result, error)
	QueryViewport(swLat, swLng, neLat, neLng float64, f spdom.Filter) (spdom.Result, error)
	QueryNear(lat, lng, radiusKm float64, f spdom.Filter) (spdom.Result, error)
	CacheStats() spdom.CacheStats
}

// CategoryPort resolves category display rows for feature decoration
type CategoryPort interface {
	ListCategories(ctx context.Context) ([]incdom.CategoryRow, error)
}
