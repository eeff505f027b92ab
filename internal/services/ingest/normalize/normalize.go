// Package normalize converts raw feed payloads into canonical incidents.
//
// Each normalizer is a pure function of the payload bytes and a reference
// time. A malformed payload produces an empty slice plus an error for the
// caller to log; a partially malformed payload keeps its good records.
// Records that cannot yield a centroid or an owner are dropped individually
package normalize

import (
	"errors"
	"time"

	"pulsemap/internal/core/attribution"
	"pulsemap/internal/core/geocell"
	"pulsemap/internal/core/georegion"
	incdom "pulsemap/internal/services/incidents/domain"
)

// recencyWindow drops feed records older than a week; records with no usable
// timestamp are kept
const recencyWindow = 7 * 24 * time.Hour

var errNoCentroid = errors.New("normalize: no derivable centroid")

// fresh reports whether any of the given timestamps falls inside the recency
// window. Zero timestamps are ignored; all-zero means keep
func fresh(now time.Time, stamps ...time.Time) bool {
	sawAny := false
	cutoff := now.Add(-recencyWindow)
	for _, ts := range stamps {
		if ts.IsZero() {
			continue
		}
		sawAny = true
		if ts.After(cutoff) {
			return true
		}
	}
	return !sawAny
}

// finalize stamps the spatial and attribution metadata every canonical record
// carries. The incident must already have Source, SourceID and either a
// geometry or explicit centroid coordinates
func finalize(inc *incdom.Incident, userHint string, meta attribution.Meta) error {
	lat, lng := inc.CentroidLat, inc.CentroidLng
	if inc.Geometry != nil {
		var ok bool
		lat, lng, ok = Centroid(inc.Geometry)
		if !ok {
			return errNoCentroid
		}
	}
	if (lat == 0 && lng == 0) || !validCoords(lat, lng) {
		return errNoCentroid
	}

	owner, err := attribution.Resolve(string(inc.Source), userHint, meta)
	if err != nil {
		return err
	}

	inc.ID = incdom.CompositeID(inc.Source, inc.SourceID)
	inc.CentroidLat, inc.CentroidLng = lat, lng
	inc.Geocell = geocell.Cell(lat, lng, geocell.DefaultPrecision)
	inc.RegionIDs = georegion.ClassifyIDs(lat, lng, inc.Location)
	inc.OwnerID = owner

	if inc.Properties == nil {
		inc.Properties = map[string]any{}
	}
	inc.Properties["source"] = string(inc.Source)
	inc.Properties["user_authored"] = inc.Source == incdom.SourceUserReport

	if inc.LastUpdated.IsZero() {
		inc.LastUpdated = time.Now().UTC()
	}
	return nil
}
