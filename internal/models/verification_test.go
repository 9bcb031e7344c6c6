package models

import "testing"

func TestVerificationReport_OverallPassed(t *testing.T) {
	report := VerificationReport{Results: []VerificationResult{
		{Kind: VerificationKindPytest, Required: true, Passed: true},
		{Kind: VerificationKindRuff, Required: false, Passed: false},
	}}
	if !report.OverallPassed() {
		t.Fatal("an optional failure should not block overall_passed")
	}

	report.Results[0].Passed = false
	if report.OverallPassed() {
		t.Fatal("a required failure must block overall_passed")
	}
}

func TestVerificationReport_WeightedScore(t *testing.T) {
	report := VerificationReport{Results: []VerificationResult{
		{Passed: true, Weight: 1.0},
		{Passed: false, Weight: 2.0},
		{Passed: true, Weight: 0.5},
	}}
	if got := report.WeightedScore(); got != 1.5 {
		t.Fatalf("expected weighted score 1.5, got %v", got)
	}
}

func TestSnapshotDelta_Improved(t *testing.T) {
	d := SnapshotDelta{TestsFixed: 2, TestsBroken: 0, SecurityDelta: 0}
	if !d.Improved() {
		t.Fatal("fixed tests with no regressions should count as improved")
	}
}

func TestSnapshotDelta_RegressedBlocksImproved(t *testing.T) {
	d := SnapshotDelta{TestsFixed: 2, TestsBroken: 1}
	if d.Improved() {
		t.Fatal("broken tests must never be masked by fixed tests")
	}
	if !d.Regressed() {
		t.Fatal("expected regression to be flagged")
	}
}

func TestCompareSnapshots(t *testing.T) {
	before := Snapshot{TestTotal: 10, TestPassed: 8, TestFailed: 2, LintErrors: 5}
	after := Snapshot{TestTotal: 12, TestPassed: 11, TestFailed: 1, LintErrors: 3}
	delta := CompareSnapshots(before, after)
	if delta.TestsAdded != 2 || delta.TestsFixed != 3 || delta.TestsBroken != 0 || delta.LintDelta != -2 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}
