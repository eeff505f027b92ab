package domain

// UpsertOutcome reports what the store did with a submitted record
type UpsertOutcome string

const (
	// OutcomeInserted means the record was new
	OutcomeInserted UpsertOutcome = "inserted"

	// OutcomeUpdated means an existing record was replaced and its version bumped
	OutcomeUpdated UpsertOutcome = "updated"

	// OutcomeSkipped means precedence kept the existing record
	OutcomeSkipped UpsertOutcome = "skipped"
)

// WriteResult pairs the stored record with the outcome of the write
type WriteResult struct {
	Incident Incident
	Outcome  UpsertOutcome
}

// SpatialPatch carries recomputed spatial metadata for an existing record
type SpatialPatch struct {
	ID        string
	Geocell   string
	RegionIDs []string
}

// CategoryRow is a display-table row for incident categories
type CategoryRow struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
}
