package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pulsemap/internal/core/attribution"
	perr "pulsemap/internal/platform/errors"
	incdom "pulsemap/internal/services/incidents/domain"
)

var titleCaser = cases.Title(language.English)

// rtEvent is the flat event shape some deployments of the road feed publish
// instead of GeoJSON
type rtEvent struct {
	ID            string  `json:"id"`
	EventType     string  `json:"event_type"`
	EventSubtype  string  `json:"event_subtype"`
	Impact        string  `json:"impact"`
	Information   string  `json:"information"`
	RoadName      string  `json:"road_name"`
	Suburb        string  `json:"suburb"`
	Published     *bool   `json:"published"`
	PublishedDate string  `json:"published_date"`
	LastUpdated   string  `json:"last_updated"`
	Lat           float64 `json:"latitude"`
	Lng           float64 `json:"longitude"`
}

// RoadTraffic normalizes the road authority feed. The payload is either a
// GeoJSON feature collection or a flat {"events": [...]} list; flat events are
// wrapped into features so one path handles both
func RoadTraffic(raw []byte, now time.Time) ([]incdom.Incident, int, error) {
	fc, err := roadTrafficFeatures(raw)
	if err != nil {
		return nil, 0, err
	}

	var (
		out     []incdom.Incident
		dropped int
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			dropped++
			continue
		}
		published := parseFeedTime(propStr(f.Properties, "published_date", "published"))
		updated := parseFeedTime(propStr(f.Properties, "last_updated", "updated_at"))
		if !fresh(now, published, updated) {
			continue
		}

		eventType := propStr(f.Properties, "event_type", "type")
		eventSub := propStr(f.Properties, "event_subtype", "subtype")
		impact := propStr(f.Properties, "impact")
		info := propStr(f.Properties, "information", "advice", "description")

		sourceID := propStr(f.Properties, "id")
		if sourceID == "" {
			if f.ID != nil {
				sourceID = strings.TrimSpace(stringifyID(f.ID))
			}
			if sourceID == "" {
				sourceID = uuid.NewString()
			}
		}

		inc := incdom.Incident{
			Source:      incdom.SourceRoadTraffic,
			SourceID:    sourceID,
			Title:       roadTitle(eventType, eventSub),
			Description: joinNonEmpty(". ", impact, info),
			Location:    joinNonEmpty(", ", propStr(f.Properties, "road_name", "road"), propStr(f.Properties, "suburb", "locality")),
			Category:    "traffic",
			Subcategory: roadSubcategory(eventType, eventSub, impact),
			Severity:    roadSeverity(impact),
			Status:      roadStatus(f.Properties),
			Geometry:    f.Geometry,
			IncidentTime: published,
			LastUpdated: firstNonZero(updated, published, now),
			PublishedAt: published,
		}
		if err := finalize(&inc, "", attribution.Meta{}); err != nil {
			dropped++
			continue
		}
		out = append(out, inc)
	}
	return out, dropped, nil
}

// roadTrafficFeatures decodes either payload shape into a feature collection
func roadTrafficFeatures(raw []byte) (*geojson.FeatureCollection, error) {
	var shape struct {
		Type   string          `json:"type"`
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, perr.JSONErrf("road traffic payload: %v", err)
	}

	if strings.EqualFold(shape.Type, "FeatureCollection") {
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, perr.JSONErrf("road traffic feature collection: %v", err)
		}
		return fc, nil
	}

	if len(shape.Events) == 0 {
		return nil, perr.JSONErrf("road traffic payload: neither feature collection nor event list")
	}
	var events []rtEvent
	if err := json.Unmarshal(shape.Events, &events); err != nil {
		return nil, perr.JSONErrf("road traffic event list: %v", err)
	}

	fc := geojson.NewFeatureCollection()
	for _, e := range events {
		f := geojson.NewFeature(orb.Point{e.Lng, e.Lat})
		f.Properties = geojson.Properties{
			"id":            e.ID,
			"event_type":    e.EventType,
			"event_subtype": e.EventSubtype,
			"impact":        e.Impact,
			"information":   e.Information,
			"road_name":     e.RoadName,
			"suburb":        e.Suburb,
			"published_date": e.PublishedDate,
			"last_updated":  e.LastUpdated,
		}
		if e.Published != nil {
			f.Properties["published"] = *e.Published
		}
		fc.Append(f)
	}
	return fc, nil
}

// roadTitle builds a display title from the feed's type codes
func roadTitle(eventType, eventSub string) string {
	t := titleCaser.String(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventType)), "_", " "))
	s := titleCaser.String(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventSub)), "_", " "))
	switch {
	case t == "" && s == "":
		return "Road Event"
	case s == "":
		return t
	case t == "":
		return s
	default:
		return t + ": " + s
	}
}

// roadSubcategory classifies by keyword with closure winning over congestion,
// congestion over accident, accident over roadwork
func roadSubcategory(parts ...string) string {
	text := strings.ToLower(strings.Join(parts, " "))
	switch {
	case containsAny(text, "closed", "closure", "blocked"):
		return "road-closure"
	case containsAny(text, "congestion", "delay", "queue", "heavy traffic"):
		return "congestion"
	case containsAny(text, "crash", "accident", "collision"):
		return "accident"
	case containsAny(text, "roadwork", "road work", "maintenance", "works"):
		return "roadwork"
	default:
		return "other"
	}
}

// roadSeverity grades the impact text
func roadSeverity(impact string) incdom.Severity {
	text := strings.ToLower(impact)
	switch {
	case containsAny(text, "blocked", "closed"):
		return incdom.SeverityCritical
	case containsAny(text, "major", "severe"):
		return incdom.SeverityHigh
	case containsAny(text, "minor", "light"):
		return incdom.SeverityLow
	default:
		return incdom.SeverityMedium
	}
}

// roadStatus maps the published flag onto lifecycle state
func roadStatus(props geojson.Properties) incdom.Status {
	if v, ok := props["published"]; ok {
		if b, ok := v.(bool); ok && !b {
			return incdom.StatusMonitoring
		}
	}
	return incdom.StatusActive
}
