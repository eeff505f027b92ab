package normalize

import (
	"testing"

	incdom "pulsemap/internal/services/incidents/domain"
)

func TestDispatch_BareArray(t *testing.T) {
	raw := `[{
		"id": "d-1",
		"incident_type": "VEHICLE CRASH",
		"locality": "Southport",
		"status": "responding",
		"jurisdiction": "Queensland Police",
		"vehicles_on_scene": 1,
		"latitude": -27.967,
		"longitude": 153.4,
		"last_updated": "2026-03-09T10:00:00Z"
	}]`

	out, _, err := Dispatch([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d incidents, want 1", len(out))
	}

	inc := out[0]
	if inc.ID != "emergency-dispatch:d-1" {
		t.Fatalf("id = %q, want composite key", inc.ID)
	}
	if inc.Subcategory != "rescue" {
		t.Fatalf("subcategory = %q, want rescue", inc.Subcategory)
	}
	if inc.Severity != incdom.SeverityHigh {
		t.Fatalf("severity = %q, want high (responding)", inc.Severity)
	}
	if inc.OwnerID != "system:police" {
		t.Fatalf("owner = %q, want the police identity", inc.OwnerID)
	}
	if len(inc.RegionIDs) != 1 || inc.RegionIDs[0] != "gold-coast" {
		t.Fatalf("region ids = %v, want [gold-coast]", inc.RegionIDs)
	}
}

func TestDispatch_WrappedList(t *testing.T) {
	raw := `{"incidents": [{
		"id": "d-2",
		"incident_type": "HOUSE FIRE",
		"jurisdiction": "Fire and Rescue",
		"latitude": -27.47,
		"longitude": 153.02,
		"last_updated": "2026-03-09T10:00:00Z"
	}]}`

	out, _, err := Dispatch([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d incidents, want 1", len(out))
	}
	if out[0].Subcategory != "fire" {
		t.Fatalf("subcategory = %q, want fire", out[0].Subcategory)
	}
	if out[0].OwnerID != "system:fire-rescue" {
		t.Fatalf("owner = %q, want the fire-rescue identity", out[0].OwnerID)
	}
}

func TestDispatch_SeverityVehicleCounts(t *testing.T) {
	rec := dispatchRecord{VehiclesOnScene: 2, VehiclesEnRoute: 1}
	if got := dispatchSeverity(rec); got != incdom.SeverityCritical {
		t.Fatalf("3 vehicles: severity = %q, want critical", got)
	}
	rec = dispatchRecord{VehiclesOnScene: 2}
	if got := dispatchSeverity(rec); got != incdom.SeverityHigh {
		t.Fatalf("2 vehicles: severity = %q, want high", got)
	}
	rec = dispatchRecord{Status: "on scene"}
	if got := dispatchSeverity(rec); got != incdom.SeverityCritical {
		t.Fatalf("on scene: severity = %q, want critical", got)
	}
	rec = dispatchRecord{Status: "finished"}
	if got := dispatchSeverity(rec); got != incdom.SeverityLow {
		t.Fatalf("finished: severity = %q, want low", got)
	}
	rec = dispatchRecord{}
	if got := dispatchSeverity(rec); got != incdom.SeverityMedium {
		t.Fatalf("default severity = %q, want medium", got)
	}
}

func TestDispatch_SubcategoryFamilies(t *testing.T) {
	cases := []struct {
		incidentType string
		jurisdiction string
		want         string
	}{
		{"SWIFTWATER RESCUE", "", "rescue"},
		{"POWER LINES DOWN", "", "utilities"},
		{"FLOODING", "", "storm-damage"},
		{"MEDICAL ASSIST", "", "medical"},
		{"CHEMICAL SPILL", "", "hazmat"},
		{"GRASS FIRE", "", "fire"},
		{"DISTURBANCE", "", "police"},
		{"UNKNOWN JOB", "Fire and Rescue", "fire"},
		{"UNKNOWN JOB", "SES", "storm-damage"},
		{"UNKNOWN JOB", "", "emergency"},
	}
	for _, tc := range cases {
		if got := dispatchSubcategory(tc.incidentType, tc.jurisdiction); got != tc.want {
			t.Fatalf("%q/%q: subcategory = %q, want %q", tc.incidentType, tc.jurisdiction, got, tc.want)
		}
	}
}

func TestDispatch_StatusMapping(t *testing.T) {
	if got := dispatchStatus("Returning"); got != incdom.StatusResolved {
		t.Fatalf("returning: status = %q, want resolved", got)
	}
	if got := dispatchStatus("On standby"); got != incdom.StatusMonitoring {
		t.Fatalf("standby: status = %q, want monitoring", got)
	}
	if got := dispatchStatus("responding"); got != incdom.StatusActive {
		t.Fatalf("responding: status = %q, want active", got)
	}
}

func TestDispatch_DropNoCentroid(t *testing.T) {
	raw := `[{"id": "d-3", "incident_type": "FIRE", "last_updated": "2026-03-09T10:00:00Z"}]`
	out, dropped, err := Dispatch([]byte(raw), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("record without coordinates should drop, got %d", len(out))
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestDispatch_Malformed(t *testing.T) {
	if _, _, err := Dispatch([]byte(`not json`), testNow); err == nil {
		t.Fatalf("malformed payload should error")
	}
}
