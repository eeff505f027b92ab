package service

import (
	"context"
	"testing"
	"time"

	perr "pulsemap/internal/platform/errors"
	dom "pulsemap/internal/services/api/mapquery/domain"
	incdom "pulsemap/internal/services/incidents/domain"
	spdom "pulsemap/internal/services/spatial/domain"
)

type fakeQuery struct {
	res  spdom.Result
	err  error
	last spdom.Filter
}

func (f *fakeQuery) Query(flt spdom.Filter) (spdom.Result, error) {
	f.last = flt
	return f.res, f.err
}

func (f *fakeQuery) QueryViewport(swLat, swLng, neLat, neLng float64, flt spdom.Filter) (spdom.Result, error) {
	flt.BBox = &spdom.BoundingBox{SWLat: swLat, SWLng: swLng, NELat: neLat, NELng: neLng}
	return f.Query(flt)
}

func (f *fakeQuery) QueryNear(lat, lng, radiusKm float64, flt spdom.Filter) (spdom.Result, error) {
	return f.Query(flt)
}

func (f *fakeQuery) CacheStats() spdom.CacheStats { return spdom.CacheStats{} }

type fakeCategories struct {
	rows  []incdom.CategoryRow
	err   error
	calls int
}

func (f *fakeCategories) ListCategories(context.Context) ([]incdom.CategoryRow, error) {
	f.calls++
	return f.rows, f.err
}

func testIncident() incdom.Incident {
	return incdom.Incident{
		ID:          "road-traffic:ev-1",
		Source:      incdom.SourceRoadTraffic,
		SourceID:    "ev-1",
		Title:       "Crash on M1",
		Category:    "traffic",
		Severity:    incdom.SeverityHigh,
		Status:      incdom.StatusActive,
		CentroidLat: -27.47,
		CentroidLng: 153.03,
		RegionIDs:   []string{"brisbane"},
		Geocell:     "p3:-27470:153030",
		LastUpdated: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestQuery_BuildsFeatureCollection(t *testing.T) {
	q := &fakeQuery{res: spdom.Result{
		Incidents: []incdom.Incident{testIncident()},
		Stats:     spdom.Stats{Stage1: 4, Stage2: 2, Stage3: 1, TotalFound: 1},
	}}
	cats := &fakeCategories{rows: []incdom.CategoryRow{
		{ID: "traffic", DisplayName: "Road & Traffic"},
	}}
	s := New(q, cats)

	out, err := s.Query(context.Background(), dom.QueryInput{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Count != 1 || len(out.GeoJSON.Features) != 1 {
		t.Fatalf("expected one feature, got count=%d features=%d", out.Count, len(out.GeoJSON.Features))
	}

	props := out.GeoJSON.Features[0].Properties
	if props["id"] != "road-traffic:ev-1" {
		t.Fatalf("id property = %v", props["id"])
	}
	if props["category_display"] != "Road & Traffic" {
		t.Fatalf("category_display = %v", props["category_display"])
	}
	if props["user_authored"] != false {
		t.Fatalf("user_authored = %v", props["user_authored"])
	}
	if out.Stats.Stage1 != 4 || out.Stats.TotalFound != 1 {
		t.Fatalf("stats not carried through: %+v", out.Stats)
	}
}

func TestQuery_CentroidFallbackGeometry(t *testing.T) {
	inc := testIncident()
	inc.Geometry = nil
	q := &fakeQuery{res: spdom.Result{Incidents: []incdom.Incident{inc}}}
	s := New(q, nil)

	out, err := s.Query(context.Background(), dom.QueryInput{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	pt := out.GeoJSON.Features[0].Point()
	if pt[0] != inc.CentroidLng || pt[1] != inc.CentroidLat {
		t.Fatalf("fallback point = %v", pt)
	}
}

func TestQuery_FilterConversion(t *testing.T) {
	q := &fakeQuery{}
	s := New(q, nil)

	since := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	_, err := s.Query(context.Background(), dom.QueryInput{
		BBox: &dom.BBoxInput{SWLat: -28, SWLng: 153, NELat: -27, NELng: 154},
		FilterInput: dom.FilterInput{
			RegionID:   "brisbane",
			Source:     "road-traffic",
			Since:      &since,
			ActiveOnly: true,
		},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.last.BBox == nil || q.last.BBox.SWLat != -28 {
		t.Fatalf("bbox not converted: %+v", q.last.BBox)
	}
	if q.last.RegionID != "brisbane" || q.last.Source != "road-traffic" {
		t.Fatalf("attribute filters not converted: %+v", q.last)
	}
	if !q.last.ActiveOnly || !q.last.Since.Equal(since) {
		t.Fatalf("since/activeOnly not converted: %+v", q.last)
	}
}

func TestQuery_EngineErrorPropagates(t *testing.T) {
	q := &fakeQuery{err: perr.Validationf("inverted bounding box")}
	s := New(q, nil)

	_, err := s.Query(context.Background(), dom.QueryInput{})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDisplayNames_LoadedOnceAndRetriedOnFailure(t *testing.T) {
	failing := &fakeCategories{err: perr.DBf("categories unavailable")}
	q := &fakeQuery{res: spdom.Result{Incidents: []incdom.Incident{testIncident()}}}
	s := New(q, failing)

	out, err := s.Query(context.Background(), dom.QueryInput{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// failed load falls back to the raw id
	if got := out.GeoJSON.Features[0].Properties["category_display"]; got != "traffic" {
		t.Fatalf("fallback display = %v", got)
	}

	// still failing, so the next query retries the load
	if _, err := s.Query(context.Background(), dom.QueryInput{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if failing.calls != 2 {
		t.Fatalf("expected a retry after failed load, calls = %d", failing.calls)
	}

	// once loaded the table is cached
	failing.err = nil
	failing.rows = []incdom.CategoryRow{{ID: "traffic", DisplayName: "Road & Traffic"}}
	for i := 0; i < 3; i++ {
		if _, err := s.Query(context.Background(), dom.QueryInput{}); err != nil {
			t.Fatalf("Query: %v", err)
		}
	}
	if failing.calls != 3 {
		t.Fatalf("expected a single successful load, calls = %d", failing.calls)
	}
}
