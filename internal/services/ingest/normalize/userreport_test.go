package normalize

import (
	"testing"

	incdom "pulsemap/internal/services/incidents/domain"
)

func TestUserReports_KeepsAuthor(t *testing.T) {
	raw := `[{
		"id": "r-1",
		"user_id": "u-42",
		"title": "Pothole on Main St",
		"latitude": -27.47,
		"longitude": 153.02,
		"created_at": "2026-03-09T10:00:00Z"
	}]`

	out, _, err := UserReports([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d incidents, want 1", len(out))
	}

	inc := out[0]
	if inc.ID != "user-submitted:r-1" {
		t.Fatalf("id = %q, want composite key", inc.ID)
	}
	if inc.OwnerID != "u-42" {
		t.Fatalf("owner = %q, want the authoring user", inc.OwnerID)
	}
	if ua, _ := inc.Properties["user_authored"].(bool); !ua {
		t.Fatalf("user submissions must carry the authored flag")
	}
	if inc.Category != "community" || inc.Subcategory != "community-issue" {
		t.Fatalf("category defaults mismatch: %q/%q", inc.Category, inc.Subcategory)
	}
}

func TestUserReports_DropMissingAuthor(t *testing.T) {
	raw := `[{
		"id": "r-2",
		"title": "anonymous report",
		"latitude": -27.47,
		"longitude": 153.02,
		"created_at": "2026-03-09T10:00:00Z"
	}]`

	out, dropped, err := UserReports([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unattributable submission should drop, got %d", len(out))
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestUserReports_GeometryKeptVerbatim(t *testing.T) {
	raw := `[{
		"id": "r-3",
		"user_id": "u-7",
		"geometry": {"type": "Point", "coordinates": [150.0, -30.0]},
		"latitude": -27.47,
		"longitude": 153.02,
		"created_at": "2026-03-09T10:00:00Z"
	}]`

	out, _, err := UserReports([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d incidents, want 1", len(out))
	}
	// centroid comes from the submitted coordinates, not the geometry
	if out[0].CentroidLat != -27.47 || out[0].CentroidLng != 153.02 {
		t.Fatalf("centroid = (%v, %v), want the submitted coordinates",
			out[0].CentroidLat, out[0].CentroidLng)
	}
	if out[0].Geometry == nil {
		t.Fatalf("submitted geometry should be preserved")
	}
}

func TestLegacyReports_Bridge(t *testing.T) {
	raw := `[{
		"id": "77",
		"title": "Power pole leaning",
		"details": "utility pole at risk",
		"type": "utility",
		"lat": -27.47,
		"lng": 153.02,
		"created": "2026-03-08T10:00:00Z"
	}]`

	out, _, err := LegacyReports([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d incidents, want 1", len(out))
	}

	inc := out[0]
	if inc.OwnerID != "system:legacy-import" {
		t.Fatalf("owner = %q, want the legacy import identity", inc.OwnerID)
	}
	if inc.Category != "infrastructure" {
		t.Fatalf("category = %q, want infrastructure for utility records", inc.Category)
	}
	if inc.Source != incdom.SourceUserReport {
		t.Fatalf("legacy records bridge in as user-submitted, got %q", inc.Source)
	}
	if inc.SourceID != "legacy-77" {
		t.Fatalf("source id = %q, want the legacy prefix", inc.SourceID)
	}
}

func TestLegacyReports_CommunityDefault(t *testing.T) {
	raw := `[{"id": "78", "title": "Dumped rubbish", "lat": -27.47, "lng": 153.02}]`
	out, _, err := LegacyReports([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Category != "community-issue" {
		t.Fatalf("non-utility legacy records default to community-issue, got %+v", out)
	}
}
