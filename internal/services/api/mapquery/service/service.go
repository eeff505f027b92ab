// Package service builds GeoJSON responses on top of the spatial engine
package service

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"pulsemap/internal/platform/logger"
	dom "pulsemap/internal/services/api/mapquery/domain"
	incdom "pulsemap/internal/services/incidents/domain"
	spdom "pulsemap/internal/services/spatial/domain"
)

// Output is the wire shape all three query endpoints share
type Output struct {
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
	Count    int                        `json:"count"`
	Stats    spdom.Stats                `json:"stats"`
	CacheHit bool                       `json:"cache_hit"`
	Elapsed  time.Duration              `json:"elapsed"`
}

// Service answers the map query endpoints
type Service struct {
	query      dom.QueryPort
	categories dom.CategoryPort

	mu      sync.Mutex
	display map[string]string
}

// New constructs a Service. categories may be nil; display decoration then
// falls back to the raw category id
func New(query dom.QueryPort, categories dom.CategoryPort) *Service {
	return &Service{query: query, categories: categories}
}

// Query answers POST /map/query
func (s *Service) Query(ctx context.Context, in dom.QueryInput) (Output, error) {
	res, err := s.query.Query(in.Filter())
	if err != nil {
		return Output{}, err
	}
	return s.output(ctx, res), nil
}

// Viewport answers POST /map/viewport
func (s *Service) Viewport(ctx context.Context, in dom.ViewportInput) (Output, error) {
	res, err := s.query.QueryViewport(in.SWLat, in.SWLng, in.NELat, in.NELng, in.FilterInput.Filter())
	if err != nil {
		return Output{}, err
	}
	return s.output(ctx, res), nil
}

// Near answers POST /map/near
func (s *Service) Near(ctx context.Context, in dom.NearInput) (Output, error) {
	res, err := s.query.QueryNear(in.Lat, in.Lng, in.RadiusKm, in.FilterInput.Filter())
	if err != nil {
		return Output{}, err
	}
	return s.output(ctx, res), nil
}

// CacheStats exposes the engine's cache counters for diagnostics
func (s *Service) CacheStats() spdom.CacheStats {
	return s.query.CacheStats()
}

func (s *Service) output(ctx context.Context, res spdom.Result) Output {
	display := s.displayNames(ctx)

	fc := geojson.NewFeatureCollection()
	for i := range res.Incidents {
		fc.Append(feature(&res.Incidents[i], display))
	}
	return Output{
		GeoJSON:  fc,
		Count:    len(res.Incidents),
		Stats:    res.Stats,
		CacheHit: res.CacheHit,
		Elapsed:  res.Elapsed,
	}
}

// feature renders one incident as a GeoJSON feature carrying the canonical
// fields plus display conveniences
func feature(inc *incdom.Incident, display map[string]string) *geojson.Feature {
	geom := inc.Geometry
	if geom == nil {
		geom = orb.Point{inc.CentroidLng, inc.CentroidLat}
	}

	f := geojson.NewFeature(geom)
	f.ID = inc.ID
	f.Properties = geojson.Properties{
		"id":          inc.ID,
		"source":      string(inc.Source),
		"source_id":   inc.SourceID,
		"title":       inc.Title,
		"description": inc.Description,
		"location":    inc.Location,
		"category":    inc.Category,
		"subcategory": inc.Subcategory,
		"severity":    string(inc.Severity),
		"status":      string(inc.Status),
		"region_ids":  inc.RegionIDs,
		"geocell":     inc.Geocell,
		"reporter_id": inc.OwnerID,
		"version":     inc.Version,
		"centroid":    []float64{inc.CentroidLng, inc.CentroidLat},
	}

	if name, ok := display[inc.Category]; ok {
		f.Properties["category_display"] = name
	} else {
		f.Properties["category_display"] = inc.Category
	}
	f.Properties["user_authored"] = inc.Source == incdom.SourceUserReport

	if !inc.LastUpdated.IsZero() {
		f.Properties["last_updated"] = inc.LastUpdated.UTC().Format(time.RFC3339)
	}
	if !inc.IncidentTime.IsZero() {
		f.Properties["incident_time"] = inc.IncidentTime.UTC().Format(time.RFC3339)
	}
	return f
}

// displayNames lazily loads the category display table; a failed load falls
// back to raw ids and retries on the next query
func (s *Service) displayNames(ctx context.Context) map[string]string {
	if s.categories == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display != nil {
		return s.display
	}

	rows, err := s.categories.ListCategories(ctx)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("category display load failed")
		return nil
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		m[row.ID] = row.DisplayName
	}
	s.display = m
	return m
}
