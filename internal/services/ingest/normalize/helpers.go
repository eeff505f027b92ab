package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

// feedTimeLayouts covers the timestamp shapes the upstream feeds emit
var feedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseFeedTime parses a feed timestamp, zero on failure
func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range feedTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// propStr returns the first non-empty string property under any of the keys
func propStr(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		v, ok := props[k]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// stringifyID renders a feature id, which GeoJSON allows as string or number
func stringifyID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// joinNonEmpty joins the non-empty parts with sep
func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, sep)
}

// firstNonZero returns the first non-zero timestamp
func firstNonZero(stamps ...time.Time) time.Time {
	for _, ts := range stamps {
		if !ts.IsZero() {
			return ts
		}
	}
	return time.Time{}
}

// containsAny reports whether text contains any of the needles
func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
