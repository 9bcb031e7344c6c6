// Package greenbranch implements the Green-Branch Manager: the
// optimistic-concurrency merge protocol that integrates finished work
// unit branches onto a shared verified head (mc/green), the speculative
// batch-merge-with-bisection fast path, and the fixup flow that repairs
// a failing scratch branch with N competing candidates.
package greenbranch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/missioncontrol/missionctl/internal/gitutil"
	"github.com/missioncontrol/missionctl/internal/models"
)

// Failure stages attached to a failed UnitMergeResult.
const (
	StageFetch              = "fetch"
	StageMergeConflict      = "merge_conflict"
	StagePreMergeVerify     = "pre_merge_verification"
	StageAcceptanceCriteria = "acceptance_criteria"
	StageSync               = "sync"
)

// Verifier runs the Verification Runner against a workspace directory
// and reports whether the required nodes passed. internal/verify
// implements this; greenbranch only depends on the interface so it
// never needs to know about verification node configuration.
type Verifier interface {
	Verify(ctx context.Context, workspace string) (*models.VerificationReport, error)
}

// AcceptanceRunner runs an acceptance-criteria shell command in a
// workspace and reports pass/fail plus combined output.
type AcceptanceRunner interface {
	RunAcceptance(ctx context.Context, workspace, criteria string, timeout time.Duration) (bool, string, error)
}

// UpstreamPublisher opens a pull request for a branch already pushed
// to the upstream remote, for Managers configured with
// PushMode == "pull_request". internal/greenbranch only depends on
// this interface; the GitHub Pull Request API implementation lives in
// push_github.go.
type UpstreamPublisher interface {
	PublishPullRequest(ctx context.Context, head, base, title, body string) (url string, err error)
}

// Config parameterizes one Manager instance.
type Config struct {
	// SourceRepo is the mission's target repository; worker clones and
	// this manager's own workspace clone both originate from it.
	SourceRepo string
	// Workspace is the Manager's own clone directory, distinct from any
	// worker's clone, where mc/working and mc/green actually live.
	Workspace string

	BaseBranch    string
	GreenBranch   string
	WorkingBranch string
	PushBranch    string

	ResetOnInit bool
	AutoPush    bool
	PushBatch   int

	// PushMode selects how AutoPush lands integrated work upstream:
	// "" or "direct" pushes straight to PushBranch (or BaseBranch);
	// "pull_request" pushes to a disposable integration branch and asks
	// the configured UpstreamPublisher to open a pull request instead,
	// for repos that require review even on an automated green branch.
	PushMode string

	FixupCandidates int
	FixupTimeout    time.Duration

	// SetupCommand optionally provisions the workspace clone (e.g. `npm
	// install`) before the manager is usable.
	SetupCommand        string
	SetupCommandTimeout time.Duration
}

func (c Config) greenBranch() string {
	if c.GreenBranch == "" {
		return "mc/green"
	}
	return c.GreenBranch
}

func (c Config) workingBranch() string {
	if c.WorkingBranch == "" {
		return "mc/working"
	}
	return c.WorkingBranch
}

func (c Config) pushBranch() string {
	if c.PushBranch == "" {
		return c.BaseBranch
	}
	return c.PushBranch
}

func (c Config) fixupCandidates() int {
	if c.FixupCandidates <= 0 {
		return 3
	}
	return c.FixupCandidates
}

// UnitMergeResult is the outcome of merging one unit's branch into
// mc/green, whether via merge_unit directly or as part of a batch.
type UnitMergeResult struct {
	Merged             bool
	RebaseOK           bool
	VerificationPassed bool
	FailureOutput      string
	FailureStage       string
	MergeCommitHash    string
	ChangedFiles       []string
	SyncOK             bool
	VerificationReport *models.VerificationReport
}

// FixupCandidate is one repair attempt tried during RunFixup.
type FixupCandidate struct {
	Branch             string
	VerificationPassed bool
	TestsPassed        int
	LintErrors         int
	DiffLines          int
	FailedKinds        []string
}

// FixupResult is the outcome of RunFixup.
type FixupResult struct {
	Success    bool
	Winner     *FixupCandidate
	Candidates []FixupCandidate
	Err        error
}

// Manager owns one Green-Branch workspace clone and serializes phase 1
// and phase 3 of the merge protocol behind a single process-wide mutex.
// Phase 2 (verification) deliberately runs unlocked so distinct merges
// pipeline their verification.
type Manager struct {
	cfg       Config
	verifier  Verifier
	accept    AcceptanceRunner
	publisher UpstreamPublisher

	mergeLock sync.Mutex

	mergesSincePush int
	mu              sync.Mutex // guards mergesSincePush
}

// New constructs a Manager. verifier and accept may be nil; RunFixup and
// the verification steps of MergeUnit/MergeBatch become no-ops (treated
// as passing) when verifier is nil, which is only appropriate for tests
// exercising pure git plumbing.
func New(cfg Config, verifier Verifier, accept AcceptanceRunner) *Manager {
	return &Manager{cfg: cfg, verifier: verifier, accept: accept}
}

// SetPublisher wires an UpstreamPublisher for PushMode == "pull_request".
// Left unset, PushGreenToMain falls back to a direct push even when
// PushMode requests a pull request, since there is nothing to publish
// with.
func (m *Manager) SetPublisher(p UpstreamPublisher) {
	m.publisher = p
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	return gitutil.Run(ctx, m.cfg.Workspace, args...)
}

func (m *Manager) runIn(ctx context.Context, dir string, args ...string) (string, error) {
	return gitutil.Run(ctx, dir, args...)
}

func (m *Manager) verify(ctx context.Context, workspace string) (*models.VerificationReport, error) {
	if m.verifier == nil {
		return &models.VerificationReport{}, nil
	}
	return m.verifier.Verify(ctx, workspace)
}

func (m *Manager) incrMergesSincePush() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergesSincePush++
	return m.mergesSincePush
}

func (m *Manager) resetMergesSincePush() {
	m.mu.Lock()
	m.mergesSincePush = 0
	m.mu.Unlock()
}

// Initialize prepares the manager's workspace clone and the two
// long-lived branches (mc/working, mc/green) in both the source repo
// and the workspace clone, flushing any unpushed mc/green commits
// upstream first when ResetOnInit is set so a mission restart never
// silently discards integrated work.
func (m *Manager) Initialize(ctx context.Context) error {
	gb := m.cfg.greenBranch()

	if m.cfg.ResetOnInit {
		if err := m.flushUnpushedGreen(ctx); err != nil {
			return fmt.Errorf("flush unpushed %s before reset: %w", gb, err)
		}
	}

	if err := m.ensureBranchesExist(ctx, m.cfg.SourceRepo); err != nil {
		return fmt.Errorf("ensure branches in source repo: %w", err)
	}

	if _, err := m.runIn(ctx, m.cfg.Workspace, "fetch", "origin"); err != nil {
		return fmt.Errorf("fetch origin into workspace clone: %w", err)
	}
	if err := m.ensureBranchesExist(ctx, m.cfg.Workspace); err != nil {
		return fmt.Errorf("ensure branches in workspace clone: %w", err)
	}
	if _, err := m.run(ctx, "checkout", gb); err != nil {
		return fmt.Errorf("checkout %s in workspace clone: %w", gb, err)
	}

	if m.cfg.SetupCommand != "" {
		timeout := m.cfg.SetupCommandTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := runShell(runCtx, m.cfg.Workspace, m.cfg.SetupCommand); err != nil {
			return fmt.Errorf("workspace setup command: %w", err)
		}
	}

	return nil
}

// flushUnpushedGreen pushes mc/green to the source repo before it gets
// reset, so commits already integrated this mission are never lost.
func (m *Manager) flushUnpushedGreen(ctx context.Context) error {
	gb := m.cfg.greenBranch()
	out, err := m.runIn(ctx, m.cfg.Workspace, "rev-list", "--count", m.cfg.BaseBranch+".."+gb)
	if err != nil {
		// mc/green may not exist yet on a first-ever run; nothing to flush.
		return nil
	}
	if trimInt(out) == 0 {
		return nil
	}
	_, err = m.runIn(ctx, m.cfg.SourceRepo, "fetch", m.cfg.Workspace, "+"+gb+":"+gb)
	return err
}

// ensureBranchesExist creates mc/working and mc/green from BaseBranch
// in dir if absent, or resets them to BaseBranch when ResetOnInit is
// set and they already exist.
func (m *Manager) ensureBranchesExist(ctx context.Context, dir string) error {
	for _, branch := range []string{m.cfg.workingBranch(), m.cfg.greenBranch()} {
		exists := gitutil.RevParseVerify(ctx, dir, branch)
		switch {
		case !exists:
			if _, err := m.runIn(ctx, dir, "branch", branch, m.cfg.BaseBranch); err != nil {
				return fmt.Errorf("create branch %s: %w", branch, err)
			}
		case m.cfg.ResetOnInit:
			if _, err := m.runIn(ctx, dir, "update-ref", "refs/heads/"+branch, "refs/heads/"+m.cfg.BaseBranch); err != nil {
				return fmt.Errorf("reset branch %s: %w", branch, err)
			}
		}
	}
	return nil
}

// GetGreenHash returns the current commit hash of mc/green.
func (m *Manager) GetGreenHash(ctx context.Context) (string, error) {
	out, err := m.run(ctx, "rev-parse", m.cfg.greenBranch())
	if err != nil {
		return "", err
	}
	return trimNL(out), nil
}
