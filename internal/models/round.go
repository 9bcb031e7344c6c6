package models

import "time"

// Round status values.
const (
	RoundStatusPlanning   = "planning"
	RoundStatusExecuting  = "executing"
	RoundStatusEvaluating = "evaluating"
	RoundStatusCompleted  = "completed"
)

// Round is one iteration of plan -> execute -> evaluate within a Mission.
// A mission has exactly one active round at a time.
type Round struct {
	ID              string
	MissionID       string
	Number          int // 1-based
	Status          string
	PlanID          string
	SnapshotHash    string // mc/green HEAD at round start
	ObjectiveScore  float64
	ObjectiveMet    bool
	TotalUnits      int
	CompletedUnits  int
	FailedUnits     int
	StartedAt       time.Time
	FinishedAt      *time.Time
}
