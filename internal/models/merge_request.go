package models

import "time"

// MergeRequest status values.
const (
	MergeRequestPending   = "pending"
	MergeRequestVerifying = "verifying"
	MergeRequestMerged    = "merged"
	MergeRequestRejected  = "rejected"
	MergeRequestConflict  = "conflict"
)

// MergeRequest is a request to merge one completed WorkUnit's branch
// into the base branch, recorded by the dispatcher when it opens a
// merge for a unit (the speculative batch path does not use it).
// Position is monotonically increasing and reflects total merge order.
type MergeRequest struct {
	ID              string
	WorkUnitID      string
	WorkerID        string
	BranchName      string
	CommitHash      string
	Status          string
	Position        int
	CreatedAt       time.Time
	VerifiedAt      *time.Time
	MergedAt        *time.Time
	RejectionReason string
	RebaseAttempts  int
}
