package greenbranch

import (
	"context"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/metrics"
)

// BatchUnit is one work unit to merge as part of a speculative batch.
type BatchUnit struct {
	Workspace  string
	Branch     string
	Acceptance string
}

// MergeBatch attempts to merge every unit onto a single speculative
// branch and verify it once; on failure it bisects to isolate the
// offending subset instead of falling back to N individual merges
// outright. A single-unit batch always delegates to MergeUnit.
func (m *Manager) MergeBatch(ctx context.Context, units []BatchUnit) []UnitMergeResult {
	if len(units) <= 1 {
		return m.mergeIndividually(ctx, units)
	}

	specBranch := "mc/speculative-batch"
	mergeable, results, ok := m.buildSpeculativeBranch(ctx, specBranch, units)
	if !ok {
		// Batch protocol itself failed (e.g. couldn't create the
		// speculative branch) -- fall back to merging everyone
		// individually rather than losing the whole batch.
		m.run(ctx, "branch", "-D", specBranch)
		return m.mergeIndividually(ctx, units)
	}
	if len(mergeable) == 0 {
		m.run(ctx, "branch", "-D", specBranch)
		return results
	}

	m.run(ctx, "checkout", specBranch)
	report, err := m.verify(ctx, m.cfg.Workspace)
	m.run(ctx, "checkout", m.cfg.greenBranch())

	if err != nil || !report.OverallPassed() {
		metrics.MergeBisections.Inc()
		indexed := make([]indexedUnit, len(mergeable))
		for i, idx := range mergeable {
			indexed[i] = indexedUnit{index: idx, unit: units[idx]}
		}
		bisected := m.bisectBatch(ctx, indexed)
		m.run(ctx, "branch", "-D", specBranch)
		for idx, r := range bisected {
			results[idx] = r
		}
		return results
	}

	m.mergeLock.Lock()
	_, ffErr := m.run(ctx, "checkout", m.cfg.greenBranch())
	if ffErr == nil {
		if _, err := m.run(ctx, "merge", "--ff-only", specBranch); err != nil {
			m.run(ctx, "merge", "--no-ff", specBranch, "-m", fmt.Sprintf("Merge speculative batch of %d units", len(mergeable)))
		}
	}
	m.syncToSource(ctx)
	m.mergeLock.Unlock()
	m.run(ctx, "branch", "-D", specBranch)

	if m.cfg.AutoPush {
		if m.incrMergesSincePush() >= m.pushBatch() {
			if m.PushGreenToMain(ctx) {
				m.resetMergesSincePush()
			}
		}
	}

	hash, _ := m.GetGreenHash(ctx)
	for i := range results {
		if !mergeableIndex(mergeable, i) {
			continue
		}
		results[i] = UnitMergeResult{
			Merged:             true,
			RebaseOK:           true,
			VerificationPassed: true,
			MergeCommitHash:    hash,
			VerificationReport: report,
			SyncOK:             true,
		}
	}
	return results
}

// buildSpeculativeBranch creates specBranch from mc/green and rebases
// + merges every unit onto it under lock. Units that conflict are
// marked failed immediately and excluded from the mergeable set.
// ok=false means the protocol itself broke (branch creation failed)
// and the caller should fall back entirely.
func (m *Manager) buildSpeculativeBranch(ctx context.Context, specBranch string, units []BatchUnit) (mergeable []int, results []UnitMergeResult, ok bool) {
	results = make([]UnitMergeResult, len(units))

	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()

	m.run(ctx, "branch", "-D", specBranch)
	if _, err := m.run(ctx, "checkout", m.cfg.greenBranch()); err != nil {
		return nil, results, false
	}
	if _, err := m.run(ctx, "checkout", "-b", specBranch); err != nil {
		return nil, results, false
	}

	for i, u := range units {
		remote := "worker-" + u.Branch
		if _, err := m.run(ctx, "remote", "add", remote, u.Workspace); err != nil {
			results[i] = UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageFetch}
			continue
		}
		if _, err := m.run(ctx, "fetch", remote, u.Branch); err != nil {
			m.run(ctx, "remote", "remove", remote)
			results[i] = UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageFetch}
			continue
		}

		rebaseBranch := "mc/rebase-" + u.Branch
		m.run(ctx, "branch", "-D", rebaseBranch)
		m.run(ctx, "branch", rebaseBranch, remote+"/"+u.Branch)
		if _, err := m.run(ctx, "rebase", specBranch, rebaseBranch); err != nil {
			m.run(ctx, "rebase", "--abort")
			m.run(ctx, "checkout", specBranch)
			m.run(ctx, "branch", "-D", rebaseBranch)
			m.run(ctx, "remote", "remove", remote)
			results[i] = UnitMergeResult{FailureStage: StageMergeConflict, FailureOutput: err.Error()}
			continue
		}

		m.run(ctx, "checkout", specBranch)
		msg := fmt.Sprintf("Merge %s (rebased) into %s", u.Branch, specBranch)
		_, mergeErr := m.run(ctx, "merge", "--no-ff", rebaseBranch, "-m", msg)
		m.run(ctx, "branch", "-D", rebaseBranch)
		m.run(ctx, "remote", "remove", remote)
		if mergeErr != nil {
			m.run(ctx, "merge", "--abort")
			results[i] = UnitMergeResult{FailureStage: StageMergeConflict, FailureOutput: mergeErr.Error()}
			continue
		}

		mergeable = append(mergeable, i)
	}

	m.run(ctx, "checkout", m.cfg.greenBranch())
	return mergeable, results, true
}

// indexedUnit pairs a BatchUnit with its position in the caller's
// original slice, so bisection can report results back by that index
// after repeatedly splitting the working set in half.
type indexedUnit struct {
	index int
	unit  BatchUnit
}

// bisectBatch recursively halves a mergeable batch, testing each half
// on a temp branch, until the offending unit(s) are isolated. The base
// case (one unit) always falls back to a direct MergeUnit call.
func (m *Manager) bisectBatch(ctx context.Context, units []indexedUnit) map[int]UnitMergeResult {
	out := make(map[int]UnitMergeResult)
	if len(units) == 0 {
		return out
	}
	if len(units) == 1 {
		u := units[0]
		out[u.index] = m.MergeUnit(ctx, u.unit.Workspace, u.unit.Branch, u.unit.Acceptance)
		return out
	}

	mid := len(units) / 2
	for k, v := range m.testHalfBatch(ctx, units[:mid]) {
		out[k] = v
	}
	for k, v := range m.testHalfBatch(ctx, units[mid:]) {
		out[k] = v
	}
	return out
}

// testHalfBatch merges a half onto a temp branch and verifies it once;
// a clean half is merged unit-by-unit (they're all good), a dirty half
// recurses into bisectBatch to split further.
func (m *Manager) testHalfBatch(ctx context.Context, units []indexedUnit) map[int]UnitMergeResult {
	if len(units) <= 1 {
		return m.bisectBatch(ctx, units)
	}

	gb := m.cfg.greenBranch()
	tempBranch := fmt.Sprintf("mc/bisect-%d", len(units)*31+units[0].index)

	allOK := func() bool {
		m.mergeLock.Lock()
		defer m.mergeLock.Unlock()

		m.run(ctx, "branch", "-D", tempBranch)
		m.run(ctx, "checkout", gb)
		if _, err := m.run(ctx, "checkout", "-b", tempBranch); err != nil {
			return false
		}

		for _, iu := range units {
			remote := "worker-" + iu.unit.Branch
			if _, err := m.run(ctx, "remote", "add", remote, iu.unit.Workspace); err != nil {
				return false
			}
			if _, err := m.run(ctx, "fetch", remote, iu.unit.Branch); err != nil {
				m.run(ctx, "remote", "remove", remote)
				return false
			}

			rebaseBranch := "mc/rebase-" + iu.unit.Branch
			m.run(ctx, "branch", "-D", rebaseBranch)
			m.run(ctx, "branch", rebaseBranch, remote+"/"+iu.unit.Branch)
			if _, err := m.run(ctx, "rebase", tempBranch, rebaseBranch); err != nil {
				m.run(ctx, "rebase", "--abort")
				m.run(ctx, "checkout", tempBranch)
				m.run(ctx, "branch", "-D", rebaseBranch)
				m.run(ctx, "remote", "remove", remote)
				return false
			}

			m.run(ctx, "checkout", tempBranch)
			_, mergeErr := m.run(ctx, "merge", "--no-ff", rebaseBranch, "-m", "Merge "+iu.unit.Branch+" (rebased) into "+tempBranch)
			m.run(ctx, "branch", "-D", rebaseBranch)
			m.run(ctx, "remote", "remove", remote)
			if mergeErr != nil {
				m.run(ctx, "merge", "--abort")
				return false
			}
		}

		m.run(ctx, "checkout", gb)
		return true
	}()

	if !allOK {
		m.run(ctx, "branch", "-D", tempBranch)
		return m.bisectBatch(ctx, units)
	}

	m.run(ctx, "checkout", tempBranch)
	report, err := m.verify(ctx, m.cfg.Workspace)
	m.run(ctx, "checkout", gb)
	m.run(ctx, "branch", "-D", tempBranch)

	if err == nil && report.OverallPassed() {
		out := make(map[int]UnitMergeResult, len(units))
		for _, iu := range units {
			out[iu.index] = m.MergeUnit(ctx, iu.unit.Workspace, iu.unit.Branch, iu.unit.Acceptance)
		}
		return out
	}
	return m.bisectBatch(ctx, units)
}

func mergeableIndex(mergeable []int, i int) bool {
	for _, m := range mergeable {
		if m == i {
			return true
		}
	}
	return false
}

func (m *Manager) mergeIndividually(ctx context.Context, units []BatchUnit) []UnitMergeResult {
	results := make([]UnitMergeResult, len(units))
	for i, u := range units {
		results[i] = m.MergeUnit(ctx, u.Workspace, u.Branch, u.Acceptance)
	}
	return results
}
