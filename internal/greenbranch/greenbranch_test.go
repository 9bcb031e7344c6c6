package greenbranch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/missioncontrol/missionctl/internal/models"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
	return string(out)
}

// initSourceRepo creates a real git repo on disk with one commit on main.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "mc@example.com")
	runGit(t, dir, "config", "user.name", "mission control")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

// cloneRepo clones source into a new temp directory.
func cloneRepo(t *testing.T, source string) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "clone")
	runGit(t, t.TempDir(), "clone", source, dest)
	return dest
}

// newTestManager creates a source repo plus the manager's own workspace
// clone and runs Initialize so mc/working and mc/green exist everywhere.
func newTestManager(t *testing.T, verifier Verifier) (*Manager, string) {
	t.Helper()
	source := initSourceRepo(t)
	workspace := cloneRepo(t, source)
	runGit(t, workspace, "config", "user.email", "mc@example.com")
	runGit(t, workspace, "config", "user.name", "mission control")

	m := New(Config{
		SourceRepo:  source,
		Workspace:   workspace,
		BaseBranch:  "main",
		GreenBranch: "mc/green",
	}, verifier, nil)
	require.NoError(t, m.Initialize(context.Background()))
	return m, source
}

// workerBranch clones source, checks out a feature branch with one new
// commit touching file, and returns the clone dir + branch name.
func workerBranch(t *testing.T, source, branch, file, content string) string {
	t.Helper()
	ws := cloneRepo(t, source)
	runGit(t, ws, "config", "user.email", "worker@example.com")
	runGit(t, ws, "config", "user.name", "worker")
	runGit(t, ws, "checkout", "-b", branch)
	require.NoError(t, os.WriteFile(filepath.Join(ws, file), []byte(content), 0o644))
	runGit(t, ws, "add", ".")
	runGit(t, ws, "commit", "-m", "worker commit on "+branch)
	return ws
}

type fakeVerifier struct {
	report *models.VerificationReport
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, workspace string) (*models.VerificationReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func passingVerifier() *fakeVerifier {
	return &fakeVerifier{report: &models.VerificationReport{}}
}

func failingVerifier() *fakeVerifier {
	return &fakeVerifier{report: &models.VerificationReport{
		Results:   []models.VerificationResult{{Kind: "custom", Required: true, Passed: false}},
		RawOutput: "it failed",
	}}
}

func TestInitializeCreatesWorkingAndGreenBranches(t *testing.T) {
	m, source := newTestManager(t, nil)
	require.True(t, gitRevParseOK(t, m.cfg.Workspace, "mc/green"))
	require.True(t, gitRevParseOK(t, m.cfg.Workspace, "mc/working"))
	require.True(t, gitRevParseOK(t, source, "mc/green"))
	require.True(t, gitRevParseOK(t, source, "mc/working"))
}

func gitRevParseOK(t *testing.T, dir, ref string) bool {
	t.Helper()
	cmd := exec.Command("git", "rev-parse", "--verify", ref)
	cmd.Dir = dir
	return cmd.Run() == nil
}

func TestMergeUnitSucceedsAndLandsOnGreen(t *testing.T) {
	m, source := newTestManager(t, passingVerifier())
	ctx := context.Background()

	ws := workerBranch(t, source, "unit-1", "unit1.txt", "unit 1 work\n")

	result := m.MergeUnit(ctx, ws, "unit-1", "")
	require.True(t, result.Merged)
	require.True(t, result.VerificationPassed)
	require.NotEmpty(t, result.MergeCommitHash)
	require.Contains(t, result.ChangedFiles, "unit1.txt")

	require.FileExists(t, filepath.Join(m.cfg.Workspace, "unit1.txt"))
}

func TestMergeUnitRollsBackOnFailedVerification(t *testing.T) {
	m, source := newTestManager(t, failingVerifier())
	ctx := context.Background()

	beforeHash := runGit(t, m.cfg.Workspace, "rev-parse", "mc/green")
	ws := workerBranch(t, source, "unit-2", "unit2.txt", "unit 2 work\n")

	result := m.MergeUnit(ctx, ws, "unit-2", "")
	require.False(t, result.Merged)
	require.False(t, result.VerificationPassed)
	require.Equal(t, StagePreMergeVerify, result.FailureStage)

	// The merge commit is reverted, not reset away -- HEAD has moved
	// forward (the revert is a new commit) but the file must be gone.
	afterHash := runGit(t, m.cfg.Workspace, "rev-parse", "mc/green")
	require.NotEqual(t, beforeHash, afterHash)
	require.NoFileExists(t, filepath.Join(m.cfg.Workspace, "unit2.txt"))
}

func TestMergeBatchAllCompatibleFastForwards(t *testing.T) {
	m, source := newTestManager(t, passingVerifier())
	ctx := context.Background()

	ws1 := workerBranch(t, source, "unit-a", "a.txt", "a\n")
	ws2 := workerBranch(t, source, "unit-b", "b.txt", "b\n")

	results := m.MergeBatch(ctx, []BatchUnit{
		{Workspace: ws1, Branch: "unit-a"},
		{Workspace: ws2, Branch: "unit-b"},
	})

	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Merged)
		require.True(t, r.VerificationPassed)
	}
	require.FileExists(t, filepath.Join(m.cfg.Workspace, "a.txt"))
	require.FileExists(t, filepath.Join(m.cfg.Workspace, "b.txt"))
}

func TestMergeBatchBisectsOnFailure(t *testing.T) {
	source := initSourceRepo(t)
	workspace := cloneRepo(t, source)
	runGit(t, workspace, "config", "user.email", "mc@example.com")
	runGit(t, workspace, "config", "user.name", "mission control")

	// A verifier that fails only when the "bad.txt" file is present lets
	// the offending unit get isolated by bisection rather than passing
	// trivially or failing everything.
	v := &conditionalVerifier{workspace: workspace, badFile: "bad.txt"}
	m := New(Config{SourceRepo: source, Workspace: workspace, BaseBranch: "main", GreenBranch: "mc/green"}, v, nil)
	require.NoError(t, m.Initialize(context.Background()))

	ctx := context.Background()
	wsGood1 := workerBranch(t, source, "unit-good-1", "good1.txt", "ok\n")
	wsGood2 := workerBranch(t, source, "unit-good-2", "good2.txt", "ok\n")
	wsBad := workerBranch(t, source, "unit-bad", "bad.txt", "bad\n")

	results := m.MergeBatch(ctx, []BatchUnit{
		{Workspace: wsGood1, Branch: "unit-good-1"},
		{Workspace: wsBad, Branch: "unit-bad"},
		{Workspace: wsGood2, Branch: "unit-good-2"},
	})

	require.Len(t, results, 3)
	require.True(t, results[0].Merged, "good-1 should land")
	require.False(t, results[1].Merged, "bad unit should be isolated and rejected")
	require.True(t, results[2].Merged, "good-2 should land")

	require.FileExists(t, filepath.Join(workspace, "good1.txt"))
	require.FileExists(t, filepath.Join(workspace, "good2.txt"))
	require.NoFileExists(t, filepath.Join(workspace, "bad.txt"))
}

// conditionalVerifier fails whenever badFile exists in the checked-out
// worktree, regardless of which branch/commit happens to be checked
// out -- used to simulate one unit's change being the true offender.
type conditionalVerifier struct {
	workspace string
	badFile   string
}

func (c *conditionalVerifier) Verify(ctx context.Context, workspace string) (*models.VerificationReport, error) {
	if _, err := os.Stat(filepath.Join(workspace, c.badFile)); err == nil {
		return &models.VerificationReport{
			Results:   []models.VerificationResult{{Kind: "custom", Required: true, Passed: false}},
			RawOutput: "bad file present",
		}, nil
	}
	return &models.VerificationReport{}, nil
}
