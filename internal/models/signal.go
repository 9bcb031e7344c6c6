package models

import "time"

// Signal types and statuses.
const (
	SignalStop       = "stop"
	SignalRetryUnit  = "retry_unit"
	SignalAdjust     = "adjust"

	SignalStatusPending      = "pending"
	SignalStatusAcknowledged = "acknowledged"
	SignalStatusExpired      = "expired"
)

// Signal is an out-of-band control-plane message, strictly scoped to a
// Mission. Signals are rows in the same transactional store as
// everything else; the Round Controller polls pending signals at each
// round boundary.
type Signal struct {
	ID        string
	MissionID string
	Type      string // stop/retry_unit/adjust
	Payload   string // JSON for adjust; unit id for retry_unit
	Status    string
	CreatedAt time.Time
}
