package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"pulsemap/internal/core/attribution"
	perr "pulsemap/internal/platform/errors"
	incdom "pulsemap/internal/services/incidents/domain"
)

// dispatchRecord is one entry in the emergency services feed
type dispatchRecord struct {
	ID              string   `json:"id"`
	IncidentType    string   `json:"incident_type"`
	Locality        string   `json:"locality"`
	Location        string   `json:"location"`
	Status          string   `json:"status"`
	Jurisdiction    string   `json:"jurisdiction"`
	VehiclesOnScene int      `json:"vehicles_on_scene"`
	VehiclesEnRoute int      `json:"vehicles_on_route"`
	LastUpdated     string   `json:"last_updated"`
	Lat             float64  `json:"latitude"`
	Lng             float64  `json:"longitude"`
	Point           *geoPoint `json:"point"`
}

type geoPoint struct {
	Coordinates []float64 `json:"coordinates"`
}

// Dispatch normalizes the emergency services feed. The payload is a JSON
// array, bare or wrapped in {"incidents": [...]}
func Dispatch(raw []byte, now time.Time) ([]incdom.Incident, int, error) {
	records, err := dispatchRecords(raw)
	if err != nil {
		return nil, 0, err
	}

	var (
		out     []incdom.Incident
		dropped int
	)
	for _, rec := range records {
		updated := parseFeedTime(rec.LastUpdated)
		if !fresh(now, updated) {
			continue
		}

		lat, lng := rec.Lat, rec.Lng
		if rec.Point != nil && len(rec.Point.Coordinates) >= 2 {
			lng, lat = rec.Point.Coordinates[0], rec.Point.Coordinates[1]
		}

		sourceID := strings.TrimSpace(rec.ID)
		if sourceID == "" {
			sourceID = uuid.NewString()
		}

		inc := incdom.Incident{
			Source:      incdom.SourceDispatch,
			SourceID:    sourceID,
			Title:       dispatchTitle(rec),
			Description: dispatchDescription(rec),
			Location:    joinNonEmpty(", ", rec.Location, rec.Locality),
			Category:    "emergency",
			Subcategory: dispatchSubcategory(rec.IncidentType, rec.Jurisdiction),
			Severity:    dispatchSeverity(rec),
			Status:      dispatchStatus(rec.Status),
			Geometry:    orb.Point{lng, lat},
			LastUpdated: firstNonZero(updated, now),
		}
		if err := finalize(&inc, "", attribution.Meta{Jurisdiction: rec.Jurisdiction}); err != nil {
			dropped++
			continue
		}
		inc.Properties["jurisdiction"] = rec.Jurisdiction
		inc.Properties["vehicles_on_scene"] = rec.VehiclesOnScene
		inc.Properties["vehicles_on_route"] = rec.VehiclesEnRoute
		out = append(out, inc)
	}
	return out, dropped, nil
}

func dispatchRecords(raw []byte) ([]dispatchRecord, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var records []dispatchRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, perr.JSONErrf("dispatch payload: %v", err)
		}
		return records, nil
	}

	var wrapper struct {
		Incidents []dispatchRecord `json:"incidents"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, perr.JSONErrf("dispatch payload: %v", err)
	}
	if wrapper.Incidents == nil {
		return nil, perr.JSONErrf("dispatch payload: no incident list")
	}
	return wrapper.Incidents, nil
}

func dispatchTitle(rec dispatchRecord) string {
	t := titleCaser.String(strings.ToLower(strings.TrimSpace(rec.IncidentType)))
	if t == "" {
		t = "Emergency Incident"
	}
	if loc := strings.TrimSpace(rec.Locality); loc != "" {
		return t + " at " + titleCaser.String(strings.ToLower(loc))
	}
	return t
}

func dispatchDescription(rec dispatchRecord) string {
	parts := []string{}
	if rec.IncidentType != "" {
		parts = append(parts, rec.IncidentType)
	}
	if rec.Locality != "" {
		parts = append(parts, "at "+rec.Locality)
	}
	if rec.Status != "" {
		parts = append(parts, "status "+rec.Status)
	}
	if rec.VehiclesOnScene > 0 || rec.VehiclesEnRoute > 0 {
		parts = append(parts, fmt.Sprintf("%d vehicle(s) on scene, %d en route",
			rec.VehiclesOnScene, rec.VehiclesEnRoute))
	}
	return strings.Join(parts, ", ")
}

// dispatchSubcategory checks keyword families in fixed priority, then falls
// back to jurisdiction hints, then the generic bucket
func dispatchSubcategory(incidentType, jurisdiction string) string {
	text := strings.ToLower(incidentType)
	switch {
	case containsAny(text, "rescue", "crash", "collision", "trapped"):
		return "rescue"
	case containsAny(text, "power", "gas", "electric", "wires"):
		return "utilities"
	case containsAny(text, "storm", "flood", "tree down", "roof"):
		return "storm-damage"
	case containsAny(text, "medical", "ambulance", "cardiac"):
		return "medical"
	case containsAny(text, "hazmat", "chemical", "spill"):
		return "hazmat"
	case containsAny(text, "fire", "smoke", "alarm"):
		return "fire"
	case containsAny(text, "police", "assault", "theft", "disturbance"):
		return "police"
	}

	j := strings.ToLower(jurisdiction)
	switch {
	case strings.Contains(j, "fire"):
		return "fire"
	case strings.Contains(j, "police"):
		return "police"
	case strings.Contains(j, "ses"):
		return "storm-damage"
	}
	return "emergency"
}

// dispatchSeverity grades by committed vehicles first, then status keywords
func dispatchSeverity(rec dispatchRecord) incdom.Severity {
	vehicles := rec.VehiclesOnScene + rec.VehiclesEnRoute
	switch {
	case vehicles >= 3:
		return incdom.SeverityCritical
	case vehicles >= 2:
		return incdom.SeverityHigh
	}

	status := strings.ToLower(rec.Status)
	switch {
	case containsAny(status, "on scene", "on-scene"):
		return incdom.SeverityCritical
	case containsAny(status, "responding", "proceeding"):
		return incdom.SeverityHigh
	case containsAny(status, "finished", "returning", "complete"):
		return incdom.SeverityLow
	default:
		return incdom.SeverityMedium
	}
}

func dispatchStatus(status string) incdom.Status {
	s := strings.ToLower(status)
	switch {
	case containsAny(s, "finished", "returning", "complete", "closed"):
		return incdom.StatusResolved
	case containsAny(s, "monitor", "patrol", "standby"):
		return incdom.StatusMonitoring
	default:
		return incdom.StatusActive
	}
}
