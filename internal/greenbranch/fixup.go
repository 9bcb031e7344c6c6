package greenbranch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// defaultFixupPrompts mirrors the reference implementation's fixed
// repair-strategy pool, used whenever no LLM-generated strategies are
// supplied. Distinct angles increase the odds at least one candidate
// fixes the underlying failure instead of repeating the same mistake.
var defaultFixupPrompts = []string{
	"Fix the failing tests by making the minimal code change needed. Re-read the failure output carefully before editing.",
	"Fix the failing tests by first reverting any recently changed logic to its last-known-good shape, then reapplying the intended change more conservatively.",
	"Fix the failing tests by checking for off-by-one errors, nil/None handling, and boundary conditions in the code paths the failure output references.",
}

// FixupSessionRunner spawns one fixup repair attempt -- an LLM-driven
// edit session against a branch already checked out in workspace -- and
// reports whether it ran to completion. The greenbranch package treats
// this purely as an opaque call, same as the Worker Backend treats its
// child process: what actually edits the branch is out of core scope.
type FixupSessionRunner interface {
	RunFixupSession(ctx context.Context, workspace, prompt string) error
}

// RunFixup spawns FixupCandidates() parallel repair attempts against
// mc/green, each on its own branch, and merges the winner (most tests
// passing, fewest lint errors, smallest diff) into mc/green.
func (m *Manager) RunFixup(ctx context.Context, failureOutput string, runner FixupSessionRunner) FixupResult {
	n := m.cfg.fixupCandidates()
	prompts := make([]string, n)
	for i := range prompts {
		prompts[i] = defaultFixupPrompts[i%len(defaultFixupPrompts)]
	}

	candidates := make([]FixupCandidate, n)
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			candidates[i] = m.runFixupCandidate(ctx, i, prompts[i], failureOutput, runner)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	result := FixupResult{Candidates: candidates}

	var passing []*FixupCandidate
	for i := range candidates {
		if candidates[i].VerificationPassed {
			passing = append(passing, &candidates[i])
		}
	}
	if len(passing) == 0 {
		result.Err = ErrNoFixupCandidatePassed
		return result
	}

	sort.Slice(passing, func(i, j int) bool {
		a, b := passing[i], passing[j]
		if a.TestsPassed != b.TestsPassed {
			return a.TestsPassed > b.TestsPassed
		}
		if a.LintErrors != b.LintErrors {
			return a.LintErrors < b.LintErrors
		}
		return a.DiffLines < b.DiffLines
	})
	winner := passing[0]

	m.mergeLock.Lock()
	m.run(ctx, "checkout", m.cfg.greenBranch())
	_, err := m.run(ctx, "merge", "--ff-only", winner.Branch)
	if err != nil {
		_, err = m.run(ctx, "merge", "--no-ff", winner.Branch, "-m", "Merge fixup candidate "+winner.Branch)
	}
	m.mergeLock.Unlock()
	if err != nil {
		return result
	}

	result.Success = true
	result.Winner = winner
	for _, c := range candidates {
		m.run(ctx, "branch", "-D", c.Branch)
	}
	return result
}

func (m *Manager) runFixupCandidate(ctx context.Context, index int, prompt, failureOutput string, runner FixupSessionRunner) FixupCandidate {
	branch := fmt.Sprintf("mc/fixup-candidate-%d", index)
	candidate := FixupCandidate{Branch: branch}
	green := m.cfg.greenBranch()

	m.run(ctx, "branch", "-D", branch)
	m.run(ctx, "checkout", green)
	if _, err := m.run(ctx, "checkout", "-b", branch); err != nil {
		return candidate
	}

	fullPrompt := prompt + "\n\n## Verification Failure\n" + truncate(failureOutput, 2000)
	if runner != nil {
		runner.RunFixupSession(ctx, m.cfg.Workspace, fullPrompt)
	}

	report, err := m.verify(ctx, m.cfg.Workspace)
	if err == nil {
		candidate.VerificationPassed = report.OverallPassed()
		for _, r := range report.Results {
			switch r.Kind {
			case "pytest":
				candidate.TestsPassed = r.Metrics["test_passed"]
			case "ruff":
				candidate.LintErrors = r.Metrics["lint_errors"]
			}
			if !r.Passed && r.Required {
				candidate.FailedKinds = append(candidate.FailedKinds, string(r.Kind))
			}
		}
	}

	if diffOut, err := m.run(ctx, "diff", "--stat", green, branch); err == nil {
		candidate.DiffLines = countDiffLines(diffOut)
	}

	m.run(ctx, "checkout", green)
	return candidate
}

// countDiffLines sums insertions+deletions from the last line of a
// `git diff --stat` summary, e.g. "3 files changed, 10 insertions(+), 5 deletions(-)".
func countDiffLines(diffStatOutput string) int {
	lines := strings.Split(diffStatOutput, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "changed") {
			continue
		}
		total := 0
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if strings.Contains(part, "insertion") || strings.Contains(part, "deletion") {
				var digits strings.Builder
				for _, ch := range part {
					if ch >= '0' && ch <= '9' {
						digits.WriteRune(ch)
					}
				}
				if n, err := strconv.Atoi(digits.String()); err == nil {
					total += n
				}
			}
		}
		return total
	}
	return 0
}
