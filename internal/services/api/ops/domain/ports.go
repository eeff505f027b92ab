// Package domain holds the operational endpoint DTOs and ports
package domain

import (
	"context"

	incdom "pulsemap/internal/services/incidents/domain"
	ingdom "pulsemap/internal/services/ingest/domain"
)

// IngestPort is the scheduler surface the operational endpoints drive
type IngestPort interface {
	RunAll(ctx context.Context) []ingdom.CycleResult
	RunOne(ctx context.Context, source incdom.Source) (ingdom.CycleResult, error)
	Health() []ingdom.SourceHealth
}

// RunInput selects which source to force; empty means all
type RunInput struct {
	Source string `json:"source,omitempty" validate:"omitempty,oneof=road-traffic emergency-dispatch user-submitted"`
}

// RunOutput reports the forced cycles
type RunOutput struct {
	Results []ingdom.CycleResult `json:"results"`
}

// HealthOutput is the scheduler diagnostics snapshot
type HealthOutput struct {
	Sources []ingdom.SourceHealth `json:"sources"`
}
