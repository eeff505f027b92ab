// Package service provides the incidents service implementation
package service

import (
	"context"
	"time"

	"pulsemap/internal/modkit/repokit"
	"pulsemap/internal/platform/logger"
	"pulsemap/internal/services/incidents/domain"
	"pulsemap/internal/services/incidents/repo"
)

// Service wraps the incidents repository with transaction handling. Each
// upsert runs in its own transaction so one bad record never poisons a batch
type Service struct {
	db     repokit.TxRunner
	binder repokit.Binder[repo.Storage]
}

// New constructs an incidents service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage]) *Service {
	return &Service{db: db, binder: binder}
}

// GetAll returns every stored incident
func (s *Service) GetAll(ctx context.Context) ([]domain.Incident, error) {
	return s.binder.Bind(s.db).GetAll(ctx)
}

// GetByID returns one incident by composite id
func (s *Service) GetByID(ctx context.Context, id string) (domain.Incident, error) {
	return s.binder.Bind(s.db).GetByID(ctx, id)
}

// Upsert writes one incident inside its own transaction and logs skipped
// writes so precedence decisions stay visible
func (s *Service) Upsert(ctx context.Context, inc domain.Incident) (domain.WriteResult, error) {
	var res domain.WriteResult
	err := repokit.WithTx(ctx, s.db, func(q repokit.Queryer) error {
		var werr error
		res, werr = s.binder.Bind(q).Upsert(ctx, inc)
		return werr
	})
	if err != nil {
		return domain.WriteResult{}, err
	}
	if res.Outcome == domain.OutcomeSkipped {
		logger.C(ctx).Info().
			Str("id", res.Incident.ID).
			Str("kept_source", string(res.Incident.Source)).
			Str("offered_source", string(inc.Source)).
			Msg("upsert skipped, official record takes precedence")
	}
	return res, nil
}

// Delete removes one incident
func (s *Service) Delete(ctx context.Context, id string) error {
	return repokit.WithTx(ctx, s.db, func(q repokit.Queryer) error {
		return s.binder.Bind(q).Delete(ctx, id)
	})
}

// PersistSpatial writes rebuilt spatial metadata in one transaction
func (s *Service) PersistSpatial(ctx context.Context, patches []domain.SpatialPatch) error {
	return repokit.WithTx(ctx, s.db, func(q repokit.Queryer) error {
		return s.binder.Bind(q).PersistSpatial(ctx, patches)
	})
}

// ListCategories returns the category display table
func (s *Service) ListCategories(ctx context.Context) ([]domain.CategoryRow, error) {
	return s.binder.Bind(s.db).ListCategories(ctx)
}

// PruneBefore drops stale resolved records and reports how many went
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := repokit.WithTx(ctx, s.db, func(q repokit.Queryer) error {
		var e error
		n, e = s.binder.Bind(q).PruneBefore(ctx, cutoff)
		return e
	})
	return n, err
}
