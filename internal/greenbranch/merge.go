package greenbranch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/missioncontrol/missionctl/internal/metrics"
)

// MergeUnit runs the three-phase optimistic-concurrency merge protocol
// for one work unit's branch, fetched from workerWorkspace. acceptance,
// if non-empty, is an additional shell command run after verification
// passes; its failure rolls back the merge the same way a failed
// verification does.
func (m *Manager) MergeUnit(ctx context.Context, workerWorkspace, branchName, acceptance string) UnitMergeResult {
	// Phase 1: locked, fast git plumbing.
	if res := m.mergeGitOps(ctx, workerWorkspace, branchName); res != nil {
		if res.FailureStage == StageMergeConflict {
			metrics.MergeConflicts.Inc()
		}
		return *res
	}

	hash, err := m.GetGreenHash(ctx)
	if err != nil {
		return UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageSync}
	}
	changed, _ := m.run(ctx, "diff", "--name-only", hash+"~1", hash)

	result := UnitMergeResult{
		Merged:          true,
		RebaseOK:        true,
		MergeCommitHash: hash,
		ChangedFiles:    splitLines(changed),
	}

	// Phase 2: unlocked verification, pinned to the merge commit hash
	// via a scratch worktree rather than the shared workspace checkout
	// -- a concurrent merge's phase 1 can advance mc/green in the
	// shared workspace while this phase runs, so verifying there would
	// risk checking the wrong commit. The worktree is read-only history
	// at a fixed hash and cannot be affected by that race.
	verifyDir, cleanup, err := m.worktreeAt(ctx, hash)
	if err != nil {
		m.rollbackMerge(ctx, hash, branchName)
		result.Merged = false
		result.FailureOutput = err.Error()
		result.FailureStage = StagePreMergeVerify
		return result
	}
	defer cleanup()

	report, err := m.verify(ctx, verifyDir)
	if err != nil {
		m.rollbackMerge(ctx, hash, branchName)
		result.Merged = false
		result.FailureOutput = err.Error()
		result.FailureStage = StagePreMergeVerify
		return result
	}
	result.VerificationReport = report
	result.VerificationPassed = report.OverallPassed()
	if !result.VerificationPassed {
		m.rollbackMerge(ctx, hash, branchName)
		result.Merged = false
		result.FailureOutput = report.RawOutput
		result.FailureStage = StagePreMergeVerify
		return result
	}

	if acceptance != "" {
		ok, output, err := m.runAcceptanceIn(ctx, verifyDir, acceptance)
		if err != nil || !ok {
			m.rollbackMerge(ctx, hash, branchName)
			result.Merged = false
			result.VerificationPassed = false
			if err != nil {
				output = err.Error()
			}
			result.FailureOutput = output
			result.FailureStage = StageAcceptanceCriteria
			return result
		}
	}

	// Phase 3: locked. If HEAD advanced while we verified, the merge
	// commit is still in history and was verified against directly, so
	// we proceed regardless.
	m.mergeLock.Lock()
	result.SyncOK = m.syncToSource(ctx) == nil
	m.mergeLock.Unlock()

	if m.cfg.AutoPush {
		if m.incrMergesSincePush() >= m.pushBatch() {
			if m.PushGreenToMain(ctx) {
				m.resetMergesSincePush()
			}
		}
	}

	return result
}

func (m *Manager) pushBatch() int {
	if m.cfg.PushBatch <= 0 {
		return 1
	}
	return m.cfg.PushBatch
}

// mergeGitOps is phase 1: add the worker workspace as a temp remote,
// fetch the unit branch, rebase it onto mc/green, merge --no-ff.
// Returns nil on success (the merge commit is now on mc/green), or a
// populated failure result.
func (m *Manager) mergeGitOps(ctx context.Context, workerWorkspace, branchName string) *UnitMergeResult {
	gb := m.cfg.greenBranch()
	remote := "worker-" + branchName

	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()

	if _, err := m.run(ctx, "remote", "add", remote, workerWorkspace); err != nil {
		return &UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageFetch}
	}
	defer m.run(ctx, "remote", "remove", remote)

	if _, err := m.run(ctx, "fetch", remote, branchName); err != nil {
		return &UnitMergeResult{FailureOutput: "failed to fetch unit branch: " + err.Error(), FailureStage: StageFetch}
	}

	defer m.run(ctx, "checkout", gb)

	if _, err := m.run(ctx, "checkout", gb); err != nil {
		return &UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageFetch}
	}
	m.run(ctx, "reset", "--hard", "HEAD")
	m.run(ctx, "clean", "-fd")

	rebaseBranch := "mc/rebase-" + branchName
	m.run(ctx, "branch", "-D", rebaseBranch)
	if _, err := m.run(ctx, "branch", rebaseBranch, remote+"/"+branchName); err != nil {
		return &UnitMergeResult{FailureOutput: err.Error(), FailureStage: StageMergeConflict}
	}

	if _, err := m.run(ctx, "rebase", gb, rebaseBranch); err != nil {
		m.run(ctx, "rebase", "--abort")
		m.run(ctx, "checkout", gb)
		m.run(ctx, "branch", "-D", rebaseBranch)
		return &UnitMergeResult{
			RebaseOK:      false,
			FailureOutput: truncate("rebase conflict: "+err.Error(), 500),
			FailureStage:  StageMergeConflict,
		}
	}

	m.run(ctx, "checkout", gb)
	msg := fmt.Sprintf("Merge %s (rebased) into %s", branchName, gb)
	if _, err := m.run(ctx, "merge", "--no-ff", rebaseBranch, "-m", msg); err != nil {
		m.run(ctx, "merge", "--abort")
		m.run(ctx, "branch", "-D", rebaseBranch)
		return &UnitMergeResult{
			FailureOutput: truncate("merge failed after rebase: "+err.Error(), 500),
			FailureStage:  StageMergeConflict,
		}
	}
	m.run(ctx, "branch", "-D", rebaseBranch)

	return nil
}

// rollbackMerge reverts a merge commit with `-m 1`, which is safe even
// if mc/green has advanced since: the merge commit stays in history,
// only its net effect is undone.
func (m *Manager) rollbackMerge(ctx context.Context, mergeCommitHash, branchName string) {
	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()
	m.run(ctx, "checkout", m.cfg.greenBranch())
	m.run(ctx, "revert", "--no-edit", "-m", "1", mergeCommitHash)
}

// syncToSource force-updates mc/green and mc/working in the source
// repo from this manager's workspace clone, so workers provisioning
// from the source repo see the latest integrated state. Must be called
// with mergeLock held.
func (m *Manager) syncToSource(ctx context.Context) error {
	var firstErr error
	for _, branch := range []string{m.cfg.greenBranch(), m.cfg.workingBranch()} {
		if _, err := m.runIn(ctx, m.cfg.SourceRepo, "fetch", m.cfg.Workspace, "+"+branch+":"+branch); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) runAcceptance(ctx context.Context, criteria string) (bool, string, error) {
	return m.runAcceptanceIn(ctx, m.cfg.Workspace, criteria)
}

func (m *Manager) runAcceptanceIn(ctx context.Context, dir, criteria string) (bool, string, error) {
	if m.accept != nil {
		return m.accept.RunAcceptance(ctx, dir, criteria, 2*time.Minute)
	}
	out, err := runShell(ctx, dir, criteria)
	return err == nil, out, nil
}

// worktreeAt checks out hash detached into a fresh scratch directory
// via `git worktree add`, so verification reads a fixed, isolated copy
// of the tree rather than racing a concurrent merge's checkout in the
// shared workspace. The returned cleanup always removes the worktree
// and its directory; callers must call it even on error paths where
// dir may be unusable.
func (m *Manager) worktreeAt(ctx context.Context, hash string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "mc-verify-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create verification worktree dir: %w", err)
	}
	cleanup = func() {
		m.run(ctx, "worktree", "remove", "--force", dir)
		os.RemoveAll(dir)
	}
	if _, err := m.run(ctx, "worktree", "add", "--detach", dir, hash); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("add verification worktree: %w", err)
	}
	return dir, cleanup, nil
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
