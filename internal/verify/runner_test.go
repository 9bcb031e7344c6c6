package verify

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/missioncontrol/missionctl/internal/models"
)

func TestParsePytest(t *testing.T) {
	out := "===== 3 failed, 7 passed, 1 error in 2.31s ====="
	metrics := parsePytest(out)
	require.Equal(t, 7, metrics["test_passed"])
	require.Equal(t, 4, metrics["test_failed"])
	require.Equal(t, 11, metrics["test_total"])
}

func TestParsePytestAllPassing(t *testing.T) {
	metrics := parsePytest("===== 12 passed in 0.41s =====")
	require.Equal(t, 12, metrics["test_passed"])
	require.Equal(t, 0, metrics["test_failed"])
	require.Equal(t, 12, metrics["test_total"])
}

func TestParseRuffNoIssues(t *testing.T) {
	require.Equal(t, 0, parseRuff("All checks passed!")["lint_errors"])
	require.Equal(t, 0, parseRuff("")["lint_errors"])
}

func TestParseRuffCountsLines(t *testing.T) {
	out := "foo.py:1:1: F401 unused import\nbar.py:12:5: E501 line too long\n"
	require.Equal(t, 2, parseRuff(out)["lint_errors"])
}

func TestParseMypySuccess(t *testing.T) {
	require.Equal(t, 0, parseMypy("Success: no issues found in 10 source files")["type_errors"])
}

func TestParseMypyIgnoresPytestTracebackErrorLines(t *testing.T) {
	out := "foo.py:10: error: Incompatible types\n" +
		"Traceback (most recent call last):\n" +
		"  raise ValueError(\"error: something else\")\n"
	require.Equal(t, 1, parseMypy(out)["type_errors"])
}

func TestParseBanditNoIssues(t *testing.T) {
	require.Equal(t, 0, parseBandit("No issues identified.")["security_findings"])
}

func TestParseBanditCountsIssues(t *testing.T) {
	out := ">> Issue: [B101:assert_used]\nsome detail\n>> Issue: [B608:hardcoded_sql]\n"
	require.Equal(t, 2, parseBandit(out)["security_findings"])
}

func fakeShell(script map[string]string) func(ctx context.Context, dir, command string) (string, error) {
	return func(ctx context.Context, dir, command string) (string, error) {
		out, ok := script[command]
		if !ok {
			// A real exit status 1, so exitCodeOf sees a nonzero code.
			return "", exec.Command("sh", "-c", "exit 1").Run()
		}
		return out, nil
	}
}

func TestRunNodesRequiredSequentialOptionalConcurrent(t *testing.T) {
	nodes := []models.VerificationNode{
		{Kind: models.VerificationKindPytest, Command: "pytest", Required: true, Weight: 1},
		{Kind: models.VerificationKindRuff, Command: "ruff check", Required: false, Weight: 0.5},
	}
	r := New(nodes, "")
	r.runShell = fakeShell(map[string]string{
		"pytest":     "5 passed in 1.0s",
		"ruff check": "All checks passed!",
	})

	report, err := r.Verify(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.True(t, report.OverallPassed())

	var sawPytest, sawRuff bool
	for _, res := range report.Results {
		switch res.Kind {
		case models.VerificationKindPytest:
			sawPytest = true
			require.True(t, res.Passed)
			require.Equal(t, 5, res.Metrics["test_passed"])
		case models.VerificationKindRuff:
			sawRuff = true
			require.True(t, res.Passed)
		}
	}
	require.True(t, sawPytest)
	require.True(t, sawRuff)
}

func TestRunNodesRequiredFailureStillRunsRemainingNodes(t *testing.T) {
	nodes := []models.VerificationNode{
		{Kind: models.VerificationKindPytest, Command: "pytest", Required: true},
		{Kind: models.VerificationKindMypy, Command: "mypy", Required: true},
	}
	r := New(nodes, "")
	r.runShell = fakeShell(map[string]string{
		"mypy": "Success: no issues found",
	})

	report, err := r.Verify(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.False(t, report.OverallPassed())
}

func TestVerifyFallsBackToSingleCommandWhenNoNodesConfigured(t *testing.T) {
	r := New(nil, "make check")
	r.runShell = fakeShell(map[string]string{
		"make check": "5 passed in 1.0s\nAll checks passed!\nSuccess: no issues found\nNo issues identified.",
	})

	report, err := r.Verify(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	require.True(t, report.OverallPassed())
}

func TestVerifyFallbackForcesPassedOnZeroExit(t *testing.T) {
	r := New(nil, "make check")
	// Combined output mentions nothing recognizable as passing, but the
	// shell command still exits 0 -- _build_result_from_single_command's
	// compat behavior is to trust the exit code over the parser.
	r.runShell = func(ctx context.Context, dir, command string) (string, error) {
		return "some unrelated tool output", nil
	}

	report, err := r.Verify(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.True(t, report.OverallPassed())
}

func TestSnapshotFromReportAggregatesMetrics(t *testing.T) {
	report := &models.VerificationReport{Results: []models.VerificationResult{
		{Kind: models.VerificationKindPytest, Metrics: map[string]int{"test_total": 10, "test_passed": 8, "test_failed": 2}},
		{Kind: models.VerificationKindRuff, Metrics: map[string]int{"lint_errors": 3}},
		{Kind: models.VerificationKindMypy, Metrics: map[string]int{"type_errors": 1}},
		{Kind: models.VerificationKindBandit, Metrics: map[string]int{"security_findings": 0}},
	}}
	snap := SnapshotFromReport(report)
	require.Equal(t, models.Snapshot{
		TestTotal: 10, TestPassed: 8, TestFailed: 2,
		LintErrors: 3, TypeErrors: 1, SecurityFindings: 0,
	}, snap)
}

func TestSnapshotProjectHealthRunsAndAggregates(t *testing.T) {
	nodes := []models.VerificationNode{
		{Kind: models.VerificationKindPytest, Command: "pytest", Required: true},
	}
	r := New(nodes, "")
	r.runShell = fakeShell(map[string]string{"pytest": "2 failed, 8 passed in 1.0s"})

	snap, err := r.SnapshotProjectHealth(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 8, snap.TestPassed)
	require.Equal(t, 2, snap.TestFailed)
}

func TestRunNodeHonorsPerNodeTimeout(t *testing.T) {
	r := New(nil, "")
	r.runShell = func(ctx context.Context, dir, command string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return "too slow", nil
		}
	}
	node := models.VerificationNode{Kind: models.VerificationKindCustom, Command: "slow", Timeout: 10 * time.Millisecond}
	result := r.runNode(context.Background(), t.TempDir(), node)
	require.False(t, result.Passed)
}

func TestRunAcceptancePasses(t *testing.T) {
	r := New(nil, "")
	r.runShell = fakeShell(map[string]string{"make accept": "ok"})

	passed, output, err := r.RunAcceptance(context.Background(), t.TempDir(), "make accept", time.Second)
	require.NoError(t, err)
	require.True(t, passed)
	require.Equal(t, "ok", output)
}

func TestRunAcceptanceFailsOnNonZeroExit(t *testing.T) {
	r := New(nil, "")
	r.runShell = fakeShell(map[string]string{"make accept": "ok"})

	passed, _, err := r.RunAcceptance(context.Background(), t.TempDir(), "make other", time.Second)
	require.NoError(t, err)
	require.False(t, passed)
}

func TestRunAcceptanceDefaultsTimeout(t *testing.T) {
	r := New(nil, "")
	var gotDeadlineSet bool
	r.runShell = func(ctx context.Context, dir, command string) (string, error) {
		_, gotDeadlineSet = ctx.Deadline()
		return "ok", nil
	}

	passed, _, err := r.RunAcceptance(context.Background(), t.TempDir(), "make accept", 0)
	require.NoError(t, err)
	require.True(t, passed)
	require.True(t, gotDeadlineSet)
}
