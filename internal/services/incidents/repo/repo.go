// Package repo provides the incidents repository implementation.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"pulsemap/internal/modkit/repokit"
	perr "pulsemap/internal/platform/errors"
	"pulsemap/internal/services/incidents/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the incidents repository
type Storage interface {
	GetAll(ctx context.Context) ([]domain.Incident, error)
	GetByID(ctx context.Context, id string) (domain.Incident, error)
	Upsert(ctx context.Context, inc domain.Incident) (domain.WriteResult, error)
	Delete(ctx context.Context, id string) error
	PersistSpatial(ctx context.Context, patches []domain.SpatialPatch) error
	ListCategories(ctx context.Context) ([]domain.CategoryRow, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const incidentCols = `
	id, source::text, source_id, title, description, location,
	category, subcategory, severity::text, status::text,
	geometry, centroid_lat, centroid_lng, region_ids, geocell,
	incident_time, last_updated, published_at, owner_id, properties, version`

// GetAll implements Storage; rows come back ordered by last_updated so index
// snapshots hash identically for identical content
func (s *pg) GetAll(ctx context.Context) ([]domain.Incident, error) {
	rows, err := s.q.Query(ctx, `SELECT `+incidentCols+` FROM incidents ORDER BY last_updated, id`)
	if err != nil {
		return nil, perr.FromPostgres(err, "incidents list")
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// GetByID implements Storage
func (s *pg) GetByID(ctx context.Context, id string) (domain.Incident, error) {
	row := s.q.QueryRow(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return domain.Incident{}, perr.NotFoundf("incident %s not found", id)
		}
		return domain.Incident{}, err
	}
	return inc, nil
}

// Upsert implements Storage. Writes are keyed by the composite id; an existing
// official record is never replaced by a user-submitted one, the write is
// skipped and the stored record returned unchanged
func (s *pg) Upsert(ctx context.Context, inc domain.Incident) (domain.WriteResult, error) {
	if inc.ID == "" {
		inc.ID = domain.CompositeID(inc.Source, inc.SourceID)
	}

	var (
		curSource  string
		curVersion int
	)
	err := s.q.QueryRow(ctx,
		`SELECT source::text, version FROM incidents WHERE id = $1 FOR UPDATE`, inc.ID,
	).Scan(&curSource, &curVersion)

	switch {
	case err != nil && strings.Contains(err.Error(), "no rows"):
		return s.insert(ctx, inc)
	case err != nil:
		return domain.WriteResult{}, perr.FromPostgres(err, "incident lock")
	}

	if domain.Source(curSource).Official() && !inc.Source.Official() {
		cur, gerr := s.GetByID(ctx, inc.ID)
		if gerr != nil {
			return domain.WriteResult{}, gerr
		}
		return domain.WriteResult{Incident: cur, Outcome: domain.OutcomeSkipped}, nil
	}

	return s.update(ctx, inc, curVersion+1)
}

func (s *pg) insert(ctx context.Context, inc domain.Incident) (domain.WriteResult, error) {
	geom, props, err := encodeJSON(inc)
	if err != nil {
		return domain.WriteResult{}, err
	}
	inc.Version = 1
	_, err = s.q.Exec(ctx, `
		INSERT INTO incidents (`+strings.TrimSpace(incidentColsPlain)+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		inc.ID, string(inc.Source), inc.SourceID, inc.Title, inc.Description, inc.Location,
		inc.Category, inc.Subcategory, string(inc.Severity), string(inc.Status),
		geom, inc.CentroidLat, inc.CentroidLng, inc.RegionIDs, inc.Geocell,
		nullableTime(inc.IncidentTime), inc.LastUpdated, nullableTime(inc.PublishedAt),
		inc.OwnerID, props, inc.Version,
	)
	if err != nil {
		return domain.WriteResult{}, perr.FromPostgres(err, "incident insert")
	}
	return domain.WriteResult{Incident: inc, Outcome: domain.OutcomeInserted}, nil
}

func (s *pg) update(ctx context.Context, inc domain.Incident, version int) (domain.WriteResult, error) {
	geom, props, err := encodeJSON(inc)
	if err != nil {
		return domain.WriteResult{}, err
	}
	inc.Version = version
	_, err = s.q.Exec(ctx, `
		UPDATE incidents SET
			source = $2, source_id = $3, title = $4, description = $5, location = $6,
			category = $7, subcategory = $8, severity = $9, status = $10,
			geometry = $11, centroid_lat = $12, centroid_lng = $13, region_ids = $14, geocell = $15,
			incident_time = $16, last_updated = $17, published_at = $18,
			owner_id = $19, properties = $20, version = $21
		WHERE id = $1`,
		inc.ID, string(inc.Source), inc.SourceID, inc.Title, inc.Description, inc.Location,
		inc.Category, inc.Subcategory, string(inc.Severity), string(inc.Status),
		geom, inc.CentroidLat, inc.CentroidLng, inc.RegionIDs, inc.Geocell,
		nullableTime(inc.IncidentTime), inc.LastUpdated, nullableTime(inc.PublishedAt),
		inc.OwnerID, props, inc.Version,
	)
	if err != nil {
		return domain.WriteResult{}, perr.FromPostgres(err, "incident update")
	}
	return domain.WriteResult{Incident: inc, Outcome: domain.OutcomeUpdated}, nil
}

// Delete implements Storage
func (s *pg) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return perr.FromPostgres(err, "incident delete")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("incident %s not found", id)
	}
	return nil
}

// PersistSpatial implements Storage; writes recomputed cell and region tags
// back after an index rebuild
func (s *pg) PersistSpatial(ctx context.Context, patches []domain.SpatialPatch) error {
	if len(patches) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`UPDATE incidents AS i SET geocell = v.geocell, region_ids = v.region_ids FROM (VALUES `)
	args := make([]any, 0, len(patches)*3)
	for i, p := range patches {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*3 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d::text[])", base, base+1, base+2)
		args = append(args, p.ID, p.Geocell, p.RegionIDs)
	}
	sb.WriteString(`) AS v(id, geocell, region_ids) WHERE i.id = v.id`)

	if _, err := s.q.Exec(ctx, sb.String(), args...); err != nil {
		return perr.FromPostgres(err, "spatial patch")
	}
	return nil
}

// ListCategories implements Storage
func (s *pg) ListCategories(ctx context.Context) ([]domain.CategoryRow, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, display_name, icon FROM incident_categories ORDER BY id`)
	if err != nil {
		return nil, perr.FromPostgres(err, "categories list")
	}
	defer rows.Close()

	var out []domain.CategoryRow
	for rows.Next() {
		var c domain.CategoryRow
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Icon); err != nil {
			return nil, perr.FromPostgres(err, "category scan")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneBefore implements Storage; drops resolved and closed records whose
// last update predates the cutoff
func (s *pg) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM incidents WHERE last_updated < $1 AND status IN ('resolved','closed')`, cutoff)
	if err != nil {
		return 0, perr.FromPostgres(err, "incident prune")
	}
	return tag.RowsAffected(), nil
}

const incidentColsPlain = `
	id, source, source_id, title, description, location,
	category, subcategory, severity, status,
	geometry, centroid_lat, centroid_lng, region_ids, geocell,
	incident_time, last_updated, published_at, owner_id, properties, version`

type scanner interface{ Scan(dest ...any) error }

func scanIncident(row scanner) (domain.Incident, error) {
	var (
		inc          domain.Incident
		source       string
		severity     string
		status       string
		geom         []byte
		props        []byte
		incidentTime *time.Time
		publishedAt  *time.Time
	)
	err := row.Scan(
		&inc.ID, &source, &inc.SourceID, &inc.Title, &inc.Description, &inc.Location,
		&inc.Category, &inc.Subcategory, &severity, &status,
		&geom, &inc.CentroidLat, &inc.CentroidLng, &inc.RegionIDs, &inc.Geocell,
		&incidentTime, &inc.LastUpdated, &publishedAt, &inc.OwnerID, &props, &inc.Version,
	)
	if err != nil {
		return domain.Incident{}, err
	}

	inc.Source = domain.Source(source)
	inc.Severity = domain.Severity(severity)
	inc.Status = domain.Status(status)
	if incidentTime != nil {
		inc.IncidentTime = *incidentTime
	}
	if publishedAt != nil {
		inc.PublishedAt = *publishedAt
	}
	if len(geom) > 0 {
		g, gerr := geojson.UnmarshalGeometry(geom)
		if gerr != nil {
			return domain.Incident{}, perr.JSONErrf("incident %s geometry: %v", inc.ID, gerr)
		}
		inc.Geometry = g.Geometry()
	}
	if len(props) > 0 {
		if uerr := json.Unmarshal(props, &inc.Properties); uerr != nil {
			return domain.Incident{}, perr.JSONErrf("incident %s properties: %v", inc.ID, uerr)
		}
	}
	return inc, nil
}

func encodeJSON(inc domain.Incident) (geom, props []byte, err error) {
	if inc.Geometry != nil {
		geom, err = geojson.NewGeometry(inc.Geometry).MarshalJSON()
		if err != nil {
			return nil, nil, perr.JSONErrf("incident %s geometry encode: %v", inc.ID, err)
		}
	}
	if inc.Properties == nil {
		props = []byte(`{}`)
	} else if props, err = json.Marshal(inc.Properties); err != nil {
		return nil, nil, perr.JSONErrf("incident %s properties encode: %v", inc.ID, err)
	}
	return geom, props, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
