package service

import (
	"context"
	"testing"
	"time"

	"pulsemap/internal/core/geocell"
	perr "pulsemap/internal/platform/errors"
	incdom "pulsemap/internal/services/incidents/domain"
	dom "pulsemap/internal/services/spatial/domain"
)

func testEngine() *Engine {
	return NewEngine(Config{CacheSize: 16, CacheTTL: time.Minute})
}

func mkIncident(id string, lat, lng float64, opts ...func(*incdom.Incident)) incdom.Incident {
	inc := incdom.Incident{
		ID:          id,
		Source:      incdom.SourceRoadTraffic,
		SourceID:    id,
		Category:    "traffic",
		Severity:    incdom.SeverityMedium,
		Status:      incdom.StatusActive,
		CentroidLat: lat,
		CentroidLng: lng,
		RegionIDs:   []string{"brisbane"},
		LastUpdated: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}
	for _, o := range opts {
		o(&inc)
	}
	return inc
}

func TestQuery_ViewportScenario(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{
		mkIncident("in", -27.5, 153.2),
		mkIncident("out", -10.0, 140.0),
	})

	res, err := e.QueryViewport(-28, 153, -27, 153.5, dom.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Incidents) != 1 || res.Incidents[0].ID != "in" {
		t.Fatalf("viewport should keep (-27.5,153.2) and drop (-10,140): %+v", res.Incidents)
	}
	if res.Stats.TotalFound != 1 || res.Stats.Stage3 != 1 {
		t.Fatalf("stats mismatch: %+v", res.Stats)
	}
}

func TestQuery_InvertedBBoxFails(t *testing.T) {
	e := testEngine()
	_, err := e.QueryViewport(-27, 153.5, -28, 153, dom.Filter{})
	if err == nil {
		t.Fatalf("inverted bbox should fail validation")
	}
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("wrong code: %v", err)
	}
}

func TestQuery_CacheHitAndPurgeOnLoad(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{mkIncident("a", -27.5, 153.2)})

	f := dom.Filter{BBox: &dom.BoundingBox{SWLat: -28, SWLng: 153, NELat: -27, NELng: 153.5}}

	res, err := e.Query(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CacheHit {
		t.Fatalf("first query must miss")
	}

	res, err = e.Query(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CacheHit {
		t.Fatalf("second identical query must hit the cache")
	}
	stats := e.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("cache counters = %+v, want 1 hit 1 miss", stats)
	}

	// changed content purges the cache
	e.Load([]incdom.Incident{
		mkIncident("a", -27.5, 153.2),
		mkIncident("b", -27.4, 153.1),
	})
	res, err = e.Query(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CacheHit {
		t.Fatalf("load with new content must purge the cache")
	}
	if len(res.Incidents) != 2 {
		t.Fatalf("got %d incidents after reload, want 2", len(res.Incidents))
	}
}

func TestLoad_UnchangedContentIsNoOp(t *testing.T) {
	e := testEngine()
	set := []incdom.Incident{mkIncident("a", -27.5, 153.2)}

	if _, changed := e.Load(set); !changed {
		t.Fatalf("first load must apply")
	}
	if _, changed := e.Load(set); changed {
		t.Fatalf("identical content must be a no-op")
	}
}

func TestLoad_BackfillsGeocell(t *testing.T) {
	e := testEngine()
	inc := mkIncident("a", -27.5, 153.2)
	inc.Geocell = ""

	patches, changed := e.Load([]incdom.Incident{inc})
	if !changed {
		t.Fatalf("load must apply")
	}
	if len(patches) != 1 || patches[0].ID != "a" || patches[0].Geocell == "" {
		t.Fatalf("missing geocell should backfill: %+v", patches)
	}
}

func TestQuery_ContinentalBoxDegradesToLinearScan(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{
		mkIncident("in", -27.5, -153.2),
		mkIncident("out", -27.5, 153.2),
	})

	// a quarter-globe box covers far more cells than the enumeration cap;
	// stage 1 must pass everything through instead of materialising the cover
	res, err := e.QueryViewport(-90, -180, 0, 0, dom.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats.Stage1 != 2 {
		t.Fatalf("oversized box should scan the whole snapshot, stage1 = %d", res.Stats.Stage1)
	}
	if len(res.Incidents) != 1 || res.Incidents[0].ID != "in" {
		t.Fatalf("exact stage should still prune: %+v", res.Incidents)
	}
}

func TestLoad_RederivesMismatchedPrecision(t *testing.T) {
	e := NewEngine(Config{CacheSize: 16, CacheTTL: time.Minute, CellPrecision: 4})
	inc := mkIncident("a", -27.5, 153.2)
	inc.Geocell = geocell.Cell(-27.5, 153.2, 3)

	patches, changed := e.Load([]incdom.Incident{inc})
	if !changed {
		t.Fatalf("load must apply")
	}
	if len(patches) != 1 || patches[0].Geocell != geocell.Cell(-27.5, 153.2, 4) {
		t.Fatalf("mismatched precision should re-derive the cell: %+v", patches)
	}

	// the prefilter covers at precision 4; the record must still be found
	res, err := e.QueryViewport(-28, 153, -27, 153.5, dom.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Stats.Stage1 != 1 || len(res.Incidents) != 1 {
		t.Fatalf("re-derived cell should survive the prefilter: stage1=%d got=%d",
			res.Stats.Stage1, len(res.Incidents))
	}
}

func TestQuery_AttributeFilters(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{
		mkIncident("traffic-active", -27.5, 153.2),
		mkIncident("dispatch", -27.5, 153.21, func(i *incdom.Incident) {
			i.Source = incdom.SourceDispatch
			i.Category = "emergency"
		}),
		mkIncident("resolved", -27.5, 153.22, func(i *incdom.Incident) {
			i.Status = incdom.StatusResolved
		}),
		mkIncident("logan", -27.5, 153.23, func(i *incdom.Incident) {
			i.RegionIDs = []string{"logan"}
		}),
		mkIncident("stale", -27.5, 153.24, func(i *incdom.Incident) {
			i.LastUpdated = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		}),
	})

	run := func(f dom.Filter) []string {
		t.Helper()
		res, err := e.Query(f)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		ids := make([]string, 0, len(res.Incidents))
		for _, inc := range res.Incidents {
			ids = append(ids, inc.ID)
		}
		return ids
	}

	if ids := run(dom.Filter{Source: "emergency-dispatch"}); len(ids) != 1 || ids[0] != "dispatch" {
		t.Fatalf("source filter: %v", ids)
	}
	if ids := run(dom.Filter{Category: "emergency"}); len(ids) != 1 || ids[0] != "dispatch" {
		t.Fatalf("category filter: %v", ids)
	}
	if ids := run(dom.Filter{RegionID: "logan"}); len(ids) != 1 || ids[0] != "logan" {
		t.Fatalf("region filter: %v", ids)
	}
	if ids := run(dom.Filter{ActiveOnly: true}); len(ids) != 4 {
		t.Fatalf("active-only should drop the resolved record: %v", ids)
	}
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if ids := run(dom.Filter{Since: since}); len(ids) != 4 {
		t.Fatalf("since filter should drop the stale record: %v", ids)
	}
}

func TestQuery_UnknownSourceFilterFails(t *testing.T) {
	e := testEngine()
	if _, err := e.Query(dom.Filter{Source: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown source filter should fail validation")
	}
}

func TestQuery_StageCountsShrink(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{
		mkIncident("in-box", -27.5, 153.2),
		mkIncident("stale-cell", -28.5, 153.2, func(i *incdom.Incident) {
			// cell tag inside the box but centroid outside it
			i.Geocell = geocell.Cell(-27.5, 153.2, geocell.DefaultPrecision)
		}),
		mkIncident("far", -10, 140),
	})

	res, err := e.QueryViewport(-28, 153, -27, 153.5, dom.Filter{Category: "none"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// the stale-cell record passes stage 1, fails stage 2; category kills the rest
	if res.Stats.Stage1 < res.Stats.Stage2 || res.Stats.Stage2 < res.Stats.Stage3 {
		t.Fatalf("stage counts must not grow: %+v", res.Stats)
	}
	if res.Stats.Stage3 != 0 || len(res.Incidents) != 0 {
		t.Fatalf("category filter should empty the result: %+v", res.Stats)
	}
}

func TestQueryNear_RadiusConversion(t *testing.T) {
	e := testEngine()
	e.Load([]incdom.Incident{
		mkIncident("close", -27.47, 153.03),
		mkIncident("far", -27.8, 153.4),
	})

	res, err := e.QueryNear(-27.4698, 153.0251, 5, dom.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Incidents) != 1 || res.Incidents[0].ID != "close" {
		t.Fatalf("5km radius should keep only the nearby record: %+v", res.Incidents)
	}

	if _, err := e.QueryNear(-27.5, 153.0, 0, dom.Filter{}); err == nil {
		t.Fatalf("non-positive radius should fail validation")
	}
}

type fakeStore struct {
	incidents []incdom.Incident
	patched   []incdom.SpatialPatch
	fail      bool
}

func (f *fakeStore) GetAll(context.Context) ([]incdom.Incident, error) {
	if f.fail {
		return nil, perr.DBf("down")
	}
	return f.incidents, nil
}

func (f *fakeStore) PersistSpatial(_ context.Context, patches []incdom.SpatialPatch) error {
	f.patched = append(f.patched, patches...)
	return nil
}

func TestRebuilder_PersistsBackfill(t *testing.T) {
	inc := mkIncident("a", -27.5, 153.2)
	inc.Geocell = ""
	store := &fakeStore{incidents: []incdom.Incident{inc}}
	e := testEngine()
	r := NewRebuilder(store, e)

	r.Rebuild(context.Background())
	if e.Size() != 1 {
		t.Fatalf("engine should hold the loaded snapshot")
	}
	if len(store.patched) != 1 || store.patched[0].Geocell == "" {
		t.Fatalf("backfill should persist: %+v", store.patched)
	}

	// identical content: no further patches
	store.patched = nil
	r.Rebuild(context.Background())
	if len(store.patched) != 0 {
		t.Fatalf("unchanged content should not re-persist")
	}
}

func TestRebuilder_StoreFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{fail: true}
	r := NewRebuilder(store, testEngine())
	r.Rebuild(context.Background())
}
