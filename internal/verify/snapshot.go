package verify

import (
	"context"

	"github.com/missioncontrol/missionctl/internal/models"
)

// SnapshotProjectHealth runs the Runner's configured nodes (or
// fallback command) against workspace and folds the resulting
// VerificationReport's per-kind metrics into one Snapshot, the same
// aggregation the Round Controller takes before and after a round to
// compute a SnapshotDelta via models.CompareSnapshots.
func (r *Runner) SnapshotProjectHealth(ctx context.Context, workspace string) (models.Snapshot, error) {
	report, err := r.Verify(ctx, workspace)
	if err != nil {
		return models.Snapshot{}, err
	}
	return SnapshotFromReport(report), nil
}

// SnapshotFromReport aggregates a VerificationReport's per-kind metrics
// into a Snapshot. Exported so callers holding a report from elsewhere
// (e.g. a pre-merge verification already run by greenbranch) can derive
// a Snapshot without re-running verification.
func SnapshotFromReport(report *models.VerificationReport) models.Snapshot {
	var snap models.Snapshot
	if report == nil {
		return snap
	}
	for _, res := range report.Results {
		switch res.Kind {
		case models.VerificationKindPytest:
			snap.TestTotal += res.Metrics["test_total"]
			snap.TestPassed += res.Metrics["test_passed"]
			snap.TestFailed += res.Metrics["test_failed"]
		case models.VerificationKindRuff:
			snap.LintErrors += res.Metrics["lint_errors"]
		case models.VerificationKindMypy:
			snap.TypeErrors += res.Metrics["type_errors"]
		case models.VerificationKindBandit:
			snap.SecurityFindings += res.Metrics["security_findings"]
		}
	}
	snap.RawOutput = truncateOutput(report.RawOutput, maxRawOutputChars)
	return snap
}

// maxRawOutputChars bounds how much raw verification output a Snapshot
// retains, matching the reference implementation's
// config.scheduler.raw_output_max_chars truncation.
const maxRawOutputChars = 8000

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
