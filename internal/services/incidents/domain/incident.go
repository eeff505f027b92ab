// Package domain holds the canonical incident model shared by ingestion,
// storage and the query engine
package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Source identifies the upstream feed an incident came from
type Source string

const (
	SourceRoadTraffic Source = "road-traffic"
	SourceDispatch    Source = "emergency-dispatch"
	SourceUserReport  Source = "user-submitted"
)

// Official reports whether the source is an authoritative feed rather than a
// user submission. Official records win precedence conflicts on upsert
func (s Source) Official() bool {
	return s == SourceRoadTraffic || s == SourceDispatch
}

// Valid reports whether s is a member of the closed source set
func (s Source) Valid() bool {
	switch s {
	case SourceRoadTraffic, SourceDispatch, SourceUserReport:
		return true
	}
	return false
}

// Severity is the normalized incident severity scale
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the normalized incident lifecycle state
type Status string

const (
	StatusActive     Status = "active"
	StatusMonitoring Status = "monitoring"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Active reports whether the status counts as ongoing for active-only queries
func (s Status) Active() bool {
	return s == StatusActive || s == StatusMonitoring
}

// Incident is the canonical normalized record. Every normalizer produces this
// shape regardless of upstream format
type Incident struct {
	// ID is the composite key "source:sourceId"
	ID       string
	Source   Source
	SourceID string

	Title       string
	Description string
	Location    string

	Category    string
	Subcategory string
	Severity    Severity
	Status      Status

	// Geometry is the original upstream shape when one was provided
	Geometry orb.Geometry

	// CentroidLat/CentroidLng is the representative point used for cell
	// tagging and distance math
	CentroidLat float64
	CentroidLng float64

	RegionIDs []string
	Geocell   string

	IncidentTime time.Time
	LastUpdated  time.Time
	PublishedAt  time.Time

	// OwnerID is the resolved attribution identity
	OwnerID string

	// Properties keeps source-specific extras that survived normalization
	Properties map[string]any

	// Version increments on every accepted update to the same id
	Version int
}

// CompositeID builds the canonical record key
func CompositeID(source Source, sourceID string) string {
	return string(source) + ":" + sourceID
}

// InRegion reports whether the incident was classified into the given region
func (i *Incident) InRegion(regionID string) bool {
	for _, id := range i.RegionIDs {
		if id == regionID {
			return true
		}
	}
	return false
}
