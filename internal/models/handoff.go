package models

// Handoff is a worker's terminal report, parsed from its MC_RESULT
// marker (or synthesized from exit code + stdout tail when the marker
// is absent or malformed). It is the source of truth for what a
// worker claims to have done.
type Handoff struct {
	ID           string
	WorkUnitID   string
	RoundID      string
	Status       string // completed/failed/blocked, mirrors WorkUnit.Status
	Summary      string
	Commits      []string
	Discoveries  []string
	Concerns     []string
	FilesChanged []string
}

// NewEmptyHandoff builds a best-effort Handoff for a unit whose output
// could not be parsed at all. Per the worker-backend contract, a parse
// failure must never fail the unit by itself -- a Handoff is always
// materialized, even if every list field is empty.
func NewEmptyHandoff(workUnitID, roundID, status, summary string) Handoff {
	return Handoff{
		ID:         NewID(),
		WorkUnitID: workUnitID,
		RoundID:    roundID,
		Status:     status,
		Summary:    summary,
	}
}
