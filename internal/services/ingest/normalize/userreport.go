package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"pulsemap/internal/core/attribution"
	perr "pulsemap/internal/platform/errors"
	incdom "pulsemap/internal/services/incidents/domain"
)

// userReport is an already-normalized submission from the reporting surface.
// These records arrive with their centroid computed; normalization annotates
// and attributes them without re-deriving geometry
type userReport struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Severity    string          `json:"severity"`
	Status      string          `json:"status"`
	Geometry    json.RawMessage `json:"geometry"`
	Lat         float64         `json:"latitude"`
	Lng         float64         `json:"longitude"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// UserReports normalizes user submissions
func UserReports(raw []byte, now time.Time) ([]incdom.Incident, int, error) {
	var reports []userReport
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, 0, perr.JSONErrf("user report payload: %v", err)
	}

	var (
		out     []incdom.Incident
		dropped int
	)
	for _, rec := range reports {
		created := parseFeedTime(rec.CreatedAt)
		updated := parseFeedTime(rec.UpdatedAt)
		if !fresh(now, created, updated) {
			continue
		}

		sourceID := strings.TrimSpace(rec.ID)
		if sourceID == "" {
			sourceID = uuid.NewString()
		}

		inc := incdom.Incident{
			Source:       incdom.SourceUserReport,
			SourceID:     sourceID,
			Title:        rec.Title,
			Description:  rec.Description,
			Location:     rec.Location,
			Category:     defaultIfEmpty(rec.Category, "community"),
			Subcategory:  defaultIfEmpty(rec.Subcategory, "community-issue"),
			Severity:     severityOrDefault(rec.Severity),
			Status:       statusOrDefault(rec.Status),
			CentroidLat:  rec.Lat,
			CentroidLng:  rec.Lng,
			IncidentTime: created,
			LastUpdated:  firstNonZero(updated, created, now),
			PublishedAt:  created,
		}
		if err := finalize(&inc, rec.UserID, attribution.Meta{}); err != nil {
			dropped++
			continue
		}
		// keep the submitted geometry verbatim, no re-derivation
		if len(rec.Geometry) > 0 {
			if g, gerr := geojson.UnmarshalGeometry(rec.Geometry); gerr == nil {
				inc.Geometry = g.Geometry()
			}
		}
		out = append(out, inc)
	}
	return out, dropped, nil
}

// legacyReport is the single-record shape of the pre-migration store
type legacyReport struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Details string  `json:"details"`
	Type    string  `json:"type"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Created string  `json:"created"`
	Updated string  `json:"updated"`
}

// LegacyReports bridges records from the old store into the canonical model,
// attributed to the legacy import identity
func LegacyReports(raw []byte, now time.Time) ([]incdom.Incident, int, error) {
	var reports []legacyReport
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, 0, perr.JSONErrf("legacy report payload: %v", err)
	}

	var (
		out     []incdom.Incident
		dropped int
	)
	for _, rec := range reports {
		created := parseFeedTime(rec.Created)
		updated := parseFeedTime(rec.Updated)

		sourceID := strings.TrimSpace(rec.ID)
		if sourceID == "" {
			sourceID = uuid.NewString()
		}

		inc := incdom.Incident{
			Source:       incdom.SourceUserReport,
			SourceID:     "legacy-" + sourceID,
			Title:        rec.Title,
			Description:  rec.Details,
			Category:     legacyCategory(rec.Type, rec.Title, rec.Details),
			Subcategory:  "legacy",
			Severity:     incdom.SeverityMedium,
			Status:       incdom.StatusActive,
			CentroidLat:  rec.Lat,
			CentroidLng:  rec.Lng,
			IncidentTime: created,
			LastUpdated:  firstNonZero(updated, created, now),
		}
		if err := finalize(&inc, "", attribution.Meta{Legacy: true}); err != nil {
			dropped++
			continue
		}
		inc.Properties["legacy"] = true
		out = append(out, inc)
	}
	return out, dropped, nil
}

// legacyCategory infers a category from the old free-text type field
func legacyCategory(parts ...string) string {
	text := strings.ToLower(strings.Join(parts, " "))
	if containsAny(text, "utility", "power", "water", "sewer", "gas") {
		return "infrastructure"
	}
	return "community-issue"
}

func defaultIfEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func severityOrDefault(s string) incdom.Severity {
	switch incdom.Severity(strings.ToLower(s)) {
	case incdom.SeverityLow, incdom.SeverityMedium, incdom.SeverityHigh, incdom.SeverityCritical:
		return incdom.Severity(strings.ToLower(s))
	default:
		return incdom.SeverityMedium
	}
}

func statusOrDefault(s string) incdom.Status {
	switch incdom.Status(strings.ToLower(s)) {
	case incdom.StatusActive, incdom.StatusMonitoring, incdom.StatusResolved, incdom.StatusClosed:
		return incdom.Status(strings.ToLower(s))
	default:
		return incdom.StatusActive
	}
}
