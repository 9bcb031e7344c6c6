package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/missioncontrol/missionctl/internal/models"
)

// run holds the mutable bookkeeping for one Dispatcher.Run invocation:
// the pending/running/completed three-set model and the dependents
// index cascade failure walks. Kept separate from Dispatcher itself
// since a Dispatcher's config and collaborators outlive any single
// plan's dispatch run.
type run struct {
	d            *Dispatcher
	missionID    string
	roundID      string
	byID         map[string]*models.WorkUnit
	dependentsOf map[string][]string

	mu        sync.Mutex
	completed map[string]bool // unit id -> success
	pending   map[string]bool
	running   map[string]bool

	sem  *resizableSemaphore
	wg   conc.WaitGroup
	done chan string
}

// loop is the dispatch loop: find every ready, non-running, non-lock-
// conflicted pending unit, spawn it, and wait for at least one
// completion before re-scanning. Exits once pending is empty and
// nothing is running; if something is pending but nothing is running
// or ready, every remaining pending unit is failed as a deadlock.
func (r *run) loop(ctx context.Context) error {
	for {
		select {
		case n := <-r.d.adjustCh:
			r.sem.resize(n)
		default:
		}

		r.mu.Lock()
		if len(r.pending) == 0 && len(r.running) == 0 {
			r.mu.Unlock()
			break
		}

		ready := r.readyLocked()
		if len(ready) == 0 && len(r.running) == 0 {
			for id := range r.pending {
				r.finishFailed(ctx, r.byID[id], "Deadlock: unmet dependencies", ErrUnmetDependency)
				r.completed[id] = false
				delete(r.pending, id)
			}
			r.mu.Unlock()
			break
		}

		for _, id := range ready {
			delete(r.pending, id)
			r.running[id] = true
			unit := r.byID[id]
			r.d.locks.Claim(id, unit.FilesHint)
			r.spawn(ctx, unit)
		}
		r.mu.Unlock()

		if !r.awaitProgress(ctx) {
			r.wg.Wait()
			return ctx.Err()
		}
	}

	r.wg.Wait()
	return nil
}

// readyLocked returns pending, non-running unit ids whose dependencies
// have all resolved and whose files_hint doesn't conflict with a
// currently running unit's claim. Caller must hold r.mu.
func (r *run) readyLocked() []string {
	var ready []string
	for id := range r.pending {
		unit := r.byID[id]
		if !unit.IsReady(r.completed) {
			continue
		}
		if r.d.locks.HasConflict(id, unit.FilesHint) {
			continue
		}
		ready = append(ready, id)
	}
	return ready
}

// spawn launches one unit's execution in its own goroutine, bounded by
// the resizable semaphore, and reports its id on r.done when finished.
// conc.WaitGroup recovers and re-panics at Wait() rather than crashing
// the whole dispatcher on one goroutine's panic, the pack's idiom for
// fan-out over unpredictable worker-process handling code.
func (r *run) spawn(ctx context.Context, unit *models.WorkUnit) {
	r.wg.Go(func() {
		if err := r.sem.acquire(ctx); err != nil {
			r.d.locks.Release(unit.ID)
			r.finishResult(unit.ID, false)
			return
		}
		success := r.executeSingleUnit(ctx, unit)
		r.sem.release()
		r.d.locks.Release(unit.ID)
		r.finishResult(unit.ID, success)

		if !success {
			r.cascadeFailure(ctx, unit.ID)
		}
	})
}

func (r *run) finishResult(id string, success bool) {
	r.mu.Lock()
	r.completed[id] = success
	delete(r.running, id)
	r.mu.Unlock()

	select {
	case r.done <- id:
	default:
	}
}

// awaitProgress blocks until at least one unit finishes or ctx is
// done, then drains any further already-ready completions so the next
// scan sees a fully up-to-date picture. Returns false if ctx ended the
// wait instead of a completion.
func (r *run) awaitProgress(ctx context.Context) bool {
	select {
	case <-r.done:
	case <-ctx.Done():
		return false
	}
	for {
		select {
		case <-r.done:
			continue
		default:
			return true
		}
	}
}

// cascadeFailure marks every transitive dependent of a failed unit as
// failed too, via breadth-first walk over the dependents index, the
// same cascade the Python original's _execute_units applies so a
// failed prerequisite doesn't leave its dependents stuck pending
// forever.
func (r *run) cascadeFailure(ctx context.Context, failedID string) {
	queue := []string{failedID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, dependentID := range r.dependentsOf[id] {
			r.mu.Lock()
			if !r.pending[dependentID] {
				r.mu.Unlock()
				continue
			}
			delete(r.pending, dependentID)
			r.completed[dependentID] = false
			r.mu.Unlock()

			unit := r.byID[dependentID]
			r.finishFailed(ctx, unit, "Blocked: dependency "+id+" failed", nil)
			queue = append(queue, dependentID)
		}
	}
}

// finishFailed persists a unit's terminal failed status plus the
// failed UnitEvent, for units that never actually execute (cyclic,
// deadlocked, or cascade-failed).
func (r *run) finishFailed(ctx context.Context, unit *models.WorkUnit, summary string, cause error) {
	now := time.Now()
	unit.Status = models.UnitStatusFailed
	unit.OutputSummary = summary
	unit.FinishedAt = &now

	if err := r.d.store.UpdateWorkUnit(unit); err != nil {
		return
	}
	details := summary
	if cause != nil {
		details = summary + ": " + cause.Error()
	}
	r.d.store.AppendEvent(&models.UnitEvent{
		ID:         models.NewID(),
		Timestamp:  now,
		MissionID:  r.missionID,
		RoundID:    r.roundID,
		WorkUnitID: unit.ID,
		EventType:  models.EventFailed,
		Details:    details,
	})
}
