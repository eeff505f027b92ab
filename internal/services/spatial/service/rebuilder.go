package service

import (
	"context"
	"sync/atomic"

	"pulsemap/internal/platform/logger"
	"pulsemap/internal/platform/metrics"
	incdom "pulsemap/internal/services/incidents/domain"
)

// IncidentStore is the storage surface a rebuild reads from and writes
// backfilled spatial metadata to
type IncidentStore interface {
	GetAll(ctx context.Context) ([]incdom.Incident, error)
	PersistSpatial(ctx context.Context, patches []incdom.SpatialPatch) error
}

// Rebuilder reloads the engine snapshot from storage. A single in-flight
// guard makes concurrent triggers a logged no-op
type Rebuilder struct {
	store    IncidentStore
	engine   *Engine
	log      *logger.Logger
	inFlight atomic.Bool
}

// NewRebuilder constructs a Rebuilder
func NewRebuilder(store IncidentStore, engine *Engine) *Rebuilder {
	return &Rebuilder{store: store, engine: engine, log: logger.Named("spatial")}
}

// Rebuild loads all incidents and feeds them to the engine. Unchanged content
// is a no-op inside Load; a changed snapshot also persists any geocell
// backfill so restarts do not recompute it
func (r *Rebuilder) Rebuild(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug().Msg("rebuild already in flight, skipping")
		return
	}
	defer r.inFlight.Store(false)

	incidents, err := r.store.GetAll(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("rebuild load failed")
		return
	}

	patches, changed := r.engine.Load(incidents)
	if !changed {
		return
	}
	metrics.IndexRebuildsTotal.Inc()
	r.log.Info().Int("incidents", len(incidents)).Int("backfilled", len(patches)).Msg("spatial index rebuilt")

	if len(patches) > 0 {
		if err := r.store.PersistSpatial(ctx, patches); err != nil {
			r.log.Warn().Err(err).Msg("spatial backfill persist failed")
		}
	}
}
