package models

import "time"

// Worker statuses.
const (
	WorkerStatusIdle    = "idle"
	WorkerStatusWorking = "working"
	WorkerStatusDead    = "dead"
)

// Worker is a status row for one live dispatcher slot: which clone it
// holds, what it is working on, and its running cost. It exists purely
// for observability (history, metrics); the Dependency Dispatcher does
// not claim work through it the way the pre-spec Python prototype did.
type Worker struct {
	ID              string
	WorkspacePath   string
	Status          string
	CurrentUnitID   string
	PID             int
	StartedAt       time.Time
	LastHeartbeat   time.Time
	UnitsCompleted  int
	UnitsFailed     int
	TotalCostUSD    float64
}
