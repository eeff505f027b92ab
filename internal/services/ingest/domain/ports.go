// Package domain defines the ingestion contracts: how sources are described,
// fetched, normalized and reported on
package domain

import (
	"context"
	"time"

	incdom "pulsemap/internal/services/incidents/domain"
)

// FetchFunc retrieves one raw feed payload
type FetchFunc func(ctx context.Context) ([]byte, error)

// NormalizeFunc converts a raw payload into canonical incidents. The second
// return counts records dropped individually (no derivable centroid, failed
// attribution). Malformed payloads yield an empty slice plus an error for
// logging; partially malformed payloads keep the good records and return them
// alongside a nil error
type NormalizeFunc func(raw []byte, now time.Time) ([]incdom.Incident, int, error)

// SourceSpec registers one upstream feed with the scheduler
type SourceSpec struct {
	Name      incdom.Source
	Fetch     FetchFunc
	Normalize NormalizeFunc

	// Interval overrides the scheduler's base polling interval when > 0
	Interval time.Duration
}

// CircuitState reports whether a source's breaker is passing traffic
type CircuitState string

const (
	CircuitClosed CircuitState = "closed"
	CircuitOpen   CircuitState = "open"
)

// SourceHealth is a read-only diagnostics snapshot for one source
type SourceHealth struct {
	Source            string        `json:"source"`
	Circuit           CircuitState  `json:"circuit"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastError         string        `json:"last_error,omitempty"`
	LastAttempt       time.Time     `json:"last_attempt,omitzero"`
	LastSuccess       time.Time     `json:"last_success,omitzero"`
	NextRun           time.Time     `json:"next_run,omitzero"`
	Interval          time.Duration `json:"interval"`
	CyclesRun         int64         `json:"cycles_run"`
	RecordsProcessed  int64         `json:"records_processed"`
}

// CycleResult tallies one ingestion cycle
type CycleResult struct {
	Source    string        `json:"source"`
	Fetched   int           `json:"fetched"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Dropped   int           `json:"dropped"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Triggered bool          `json:"triggered,omitempty"`
}

// Processed is the number of records the cycle accepted into storage
func (r CycleResult) Processed() int {
	return r.Inserted + r.Updated
}
