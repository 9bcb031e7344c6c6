package models

import "time"

// VerificationNodeKind identifies the flavor of a verification command,
// which determines how its output is parsed into metrics.
type VerificationNodeKind string

// Known verification node kinds. Custom is for shell commands with no
// specialized parser -- only pass/fail (exit code) is derived.
const (
	VerificationKindPytest VerificationNodeKind = "pytest"
	VerificationKindRuff   VerificationNodeKind = "ruff"
	VerificationKindMypy   VerificationNodeKind = "mypy"
	VerificationKindBandit VerificationNodeKind = "bandit"
	VerificationKindCustom VerificationNodeKind = "custom"
)

// VerificationNode is one configured check: a shell command, whether it
// is required (blocks the gate) or optional (advisory, scored only),
// its timeout, and its scoring weight.
type VerificationNode struct {
	Kind     VerificationNodeKind
	Command  string
	Required bool
	Weight   float64
	Timeout  time.Duration
}

// VerificationResult is the outcome of running one VerificationNode.
type VerificationResult struct {
	Kind     VerificationNodeKind
	Passed   bool
	ExitCode int
	Output   string
	Metrics  map[string]int
	Duration time.Duration
	Required bool
	Weight   float64
}

// VerificationReport aggregates every VerificationResult from one
// verification run.
type VerificationReport struct {
	Results   []VerificationResult
	RawOutput string
}

// OverallPassed reports whether every required result passed. A report
// with no required results (e.g. all-optional or empty) passes by
// vacuous truth.
func (r *VerificationReport) OverallPassed() bool {
	for _, res := range r.Results {
		if res.Required && !res.Passed {
			return false
		}
	}
	return true
}

// WeightedScore computes Σ(weight × pass) across all results.
func (r *VerificationReport) WeightedScore() float64 {
	var total float64
	for _, res := range r.Results {
		if res.Passed {
			total += res.Weight
		}
	}
	return total
}
