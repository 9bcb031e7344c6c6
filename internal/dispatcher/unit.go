package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/worker"
)

// executeSingleUnit provisions a workspace, spawns the unit's worker
// process, polls it to completion (or kill, or timeout), merges a
// successful result onto the green branch, and persists every status
// transition. Returns true iff the unit's terminal status is
// completed.
func (r *run) executeSingleUnit(ctx context.Context, unit *models.WorkUnit) bool {
	d := r.d
	branch := fmt.Sprintf("mc/unit-%s", unit.ID)
	unit.BranchName = branch

	now := time.Now()
	unit.Status = models.UnitStatusRunning
	unit.StartedAt = &now
	unit.HeartbeatAt = &now
	d.store.UpdateWorkUnit(unit)
	r.appendEvent(unit.ID, models.EventRunning, "")

	handle, err := d.backend.ProvisionWorkspace(ctx, unit.ID)
	if err != nil {
		return r.fail(unit, "Infrastructure error: "+err.Error())
	}
	if handle == nil {
		return r.fail(unit, ErrWorkspaceUnavailable.Error())
	}
	defer d.backend.ReleaseWorkspace(ctx, handle)

	prompt := ""
	if d.prompt != nil {
		prompt = d.prompt(unit)
	}
	argv := d.argv(unit, prompt)

	effectiveTimeout := d.cfg.effectiveTimeout(unit)
	eh, err := d.backend.Spawn(ctx, handle, argv, effectiveTimeout)
	if err != nil {
		return r.fail(unit, "Infrastructure error: "+err.Error())
	}

	status, output := r.poll(ctx, eh, unit.ID, effectiveTimeout)
	switch status {
	case worker.StatusRunning: // poll deadline reached without a terminal status
		d.backend.Kill(eh)
		return r.fail(unit, fmt.Sprintf("Timed out after %ds", int(effectiveTimeout.Seconds())))
	case "stopped":
		d.backend.Kill(eh)
		return r.fail(unit, "Stopped by signal")
	}

	return r.finishFromOutput(ctx, unit, handle.WorkspacePath, output)
}

// poll watches eh until it reaches a terminal status, the dispatcher's
// running flag clears, or effectiveTimeout elapses, checking at
// cfg.monitorInterval() -- the same cadence the Python original's
// monitor_interval poll loop uses. Returns the ExecHandle's final
// status ("stopped" is synthesized, not one backend ever reports).
func (r *run) poll(ctx context.Context, eh *worker.ExecHandle, unitID string, effectiveTimeout time.Duration) (string, string) {
	deadline := time.Now().Add(effectiveTimeout)
	ticker := time.NewTicker(r.d.cfg.monitorInterval())
	defer ticker.Stop()

	for {
		status := r.d.backend.CheckStatus(eh)
		if status != worker.StatusRunning {
			return status, r.d.backend.GetOutput(eh)
		}
		if !r.d.isRunning() {
			return "stopped", r.d.backend.GetOutput(eh)
		}
		if time.Now().After(deadline) {
			return worker.StatusRunning, r.d.backend.GetOutput(eh)
		}

		select {
		case <-ctx.Done():
			return "stopped", r.d.backend.GetOutput(eh)
		case <-ticker.C:
			r.d.store.TouchHeartbeat(unitID, time.Now())
		}
	}
}

// finishFromOutput parses the worker's MC_RESULT marker (if any),
// records a Handoff, and applies the unit_status -> WorkUnit.Status
// mapping spec.md §4.5 describes: completed-with-commit merges onto
// green; completed-with-no-commits finishes clean; blocked finishes
// blocked; anything else (including an unparseable result) is a failed
// attempt.
func (r *run) finishFromOutput(ctx context.Context, unit *models.WorkUnit, workspacePath, output string) bool {
	result, ok := worker.ParseMCResult(output)
	if !ok {
		return r.fail(unit, "Data error: "+worker.ErrNoMCResult.Error())
	}

	handoff := models.NewEmptyHandoff(unit.ID, r.roundID, result.Status, result.Summary)
	handoff.Commits = result.Commits
	handoff.Discoveries = result.Discoveries
	handoff.Concerns = result.Concerns
	handoff.FilesChanged = result.FilesChanged
	r.d.store.InsertHandoff(&handoff)

	switch result.Status {
	case "completed":
		if len(result.Commits) == 0 {
			return r.succeed(unit, result.Summary, "")
		}
		return r.mergeAndFinish(ctx, unit, workspacePath, result)
	case "blocked":
		now := time.Now()
		unit.Status = models.UnitStatusBlocked
		unit.OutputSummary = result.Summary
		unit.FinishedAt = &now
		r.d.store.UpdateWorkUnit(unit)
		r.appendEvent(unit.ID, models.EventFailed, "blocked: "+result.Summary)
		return false
	default:
		unit.Attempt++
		return r.fail(unit, result.Summary)
	}
}

// mergeAndFinish hands a completed unit's branch to the Green-Branch
// Manager and finalizes the unit's status from the merge outcome. A
// MergeRequest row brackets the call so the Merge Serializer's queue is
// observable in the Event Store, not just inferred from mergeLock
// ordering inside greenbranch.
func (r *run) mergeAndFinish(ctx context.Context, unit *models.WorkUnit, workspacePath string, result worker.Result) bool {
	mr := r.openMergeRequest(unit)

	mergeResult := r.d.merger.MergeUnit(ctx, workspacePath, unit.BranchName, unit.AcceptanceCriteria)
	now := time.Now()
	if !mergeResult.Merged {
		mr.Status = models.MergeRequestRejected
		mr.RejectionReason = mergeResult.FailureStage + ": " + mergeResult.FailureOutput
		mr.VerifiedAt = &now
		r.d.store.UpdateMergeRequest(mr)

		unit.Attempt++
		return r.fail(unit, "Merge conflict at stage "+mergeResult.FailureStage+": "+mergeResult.FailureOutput)
	}

	mr.Status = models.MergeRequestMerged
	mr.CommitHash = mergeResult.MergeCommitHash
	mr.VerifiedAt = &now
	mr.MergedAt = &now
	r.d.store.UpdateMergeRequest(mr)

	return r.succeed(unit, result.Summary, mergeResult.MergeCommitHash)
}

// openMergeRequest records a pending merge request before handing the
// unit's branch to the Green-Branch Manager, assigning it the next
// monotonic queue position. Insertion failures are non-fatal: the
// MergeRequest row is an observability record of the merge queue, not
// something the merge protocol itself depends on.
func (r *run) openMergeRequest(unit *models.WorkUnit) *models.MergeRequest {
	position, err := r.d.store.GetNextMergePosition()
	if err != nil {
		position = 0
	}
	mr := &models.MergeRequest{
		ID:         models.NewID(),
		WorkUnitID: unit.ID,
		WorkerID:   unit.WorkerID,
		BranchName: unit.BranchName,
		Status:     models.MergeRequestVerifying,
		Position:   position,
		CreatedAt:  time.Now(),
	}
	r.d.store.InsertMergeRequest(mr)
	return mr
}

func (r *run) succeed(unit *models.WorkUnit, summary, commitHash string) bool {
	now := time.Now()
	unit.Status = models.UnitStatusCompleted
	unit.OutputSummary = summary
	unit.FinishedAt = &now
	if commitHash != "" {
		unit.CommitHash = commitHash
	}
	r.d.store.UpdateWorkUnit(unit)
	if commitHash != "" {
		r.appendEvent(unit.ID, models.EventMerged, summary)
	} else {
		r.appendEvent(unit.ID, models.EventCompleted, summary)
	}
	return true
}

func (r *run) fail(unit *models.WorkUnit, summary string) bool {
	now := time.Now()
	unit.Status = models.UnitStatusFailed
	unit.OutputSummary = summary
	unit.FinishedAt = &now
	r.d.store.UpdateWorkUnit(unit)
	r.appendEvent(unit.ID, models.EventFailed, summary)
	return false
}

func (r *run) appendEvent(unitID, eventType, details string) {
	r.d.store.AppendEvent(&models.UnitEvent{
		ID:         models.NewID(),
		Timestamp:  time.Now(),
		MissionID:  r.missionID,
		RoundID:    r.roundID,
		WorkUnitID: unitID,
		EventType:  eventType,
		Details:    details,
	})
}
