package worker

import "errors"

var (
	// ErrEmptyArgv is returned by Spawn when the rendered argv has no
	// command to execute.
	ErrEmptyArgv = errors.New("empty argv")
	// ErrNoMCResult names the case where a worker process's output never
	// produced a parseable MC_RESULT marker; the dispatcher writes its
	// text into the failed unit's summary.
	ErrNoMCResult = errors.New("no parseable MC_RESULT in worker output")
	// ErrBackendUnavailable wraps a tripped circuit breaker's error so
	// callers can detect "we didn't even try" without importing gobreaker.
	ErrBackendUnavailable = errors.New("worker backend circuit open, refusing to dispatch")
)
