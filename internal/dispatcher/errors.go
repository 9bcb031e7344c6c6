package dispatcher

import "errors"

// Sentinel errors naming unit failure causes. The dispatcher writes the
// text of some of them into a failed unit's summary or failed-event
// details; Run never returns them, so they cannot be matched with
// errors.Is on Run's result. ErrStopped, ErrTimedOut and
// ErrFileLockConflict are not referenced by the dispatch code.
var (
	// ErrCyclicDependency marks a unit that topological sort never
	// reached because it sits in a dependency cycle.
	ErrCyclicDependency = errors.New("circular dependency detected")
	// ErrUnmetDependency marks a unit still pending when nothing is
	// running and nothing ready remains -- its dependencies can never
	// resolve.
	ErrUnmetDependency = errors.New("unmet dependencies")
	// ErrStopped means the dispatcher's running flag was cleared while
	// a unit's worker process was still executing.
	ErrStopped = errors.New("stopped by signal")
	// ErrTimedOut means a unit's worker process exceeded its effective
	// timeout (unit timeout, or the dispatcher default, times the
	// configured timeout multiplier).
	ErrTimedOut = errors.New("timed out")
	// ErrWorkspaceUnavailable means the workspace pool was at capacity
	// when a ready unit tried to provision.
	ErrWorkspaceUnavailable = errors.New("workspace unavailable")
	// ErrFileLockConflict means a ready unit's files_hint overlaps a
	// path claimed by a currently running unit.
	ErrFileLockConflict = errors.New("file lock conflict")
)
