package worker

import (
	"fmt"
	"strings"

	"github.com/missioncontrol/missionctl/internal/models"
)

// promptTemplate mirrors the worker prompt contract spec.md §4.3
// describes: task scope, current project health, verification focus,
// and the mandatory MC_RESULT terminal marker instruction.
const promptTemplate = `You are a parallel worker agent for %s at %s.

## Task
%s

%s

## Scope
ONLY modify files related to this task.
Files likely involved: %s

## Current Project State
- Tests: %d/%d passing
- Lint errors: %d
- Type errors: %d
- Branch: %s

## Verification Focus
%s

## Context
%s

## Instructions
1. Implement the task described above
2. ONLY modify files listed in the scope (or closely related files)
3. Run verification: %s
4. If verification passes, commit with a descriptive message
5. If verification fails after repeated attempts, stop and report what went wrong
6. Do NOT modify unrelated files or tests

## Output
When done, write a summary as the LAST line of output:
MC_RESULT:{"status":"completed|failed|blocked","commits":["hash"],"summary":"what you did","files_changed":["list"]}
`

// PromptParams carries everything RenderPrompt needs beyond the unit
// itself -- current project health and the verification command are
// mission-level context the dispatcher threads through.
type PromptParams struct {
	TargetName          string
	WorkspacePath       string
	BranchName          string
	TestsPassed         int
	TestsTotal          int
	LintErrors          int
	TypeErrors          int
	ContextBlock        string
	VerificationCommand string
}

// RenderPrompt builds the worker prompt for a unit.
func RenderPrompt(unit *models.WorkUnit, p PromptParams) string {
	verificationHint := unit.VerificationHint
	if verificationHint == "" {
		verificationHint = "Run full verification suite"
	}
	contextBlock := p.ContextBlock
	if contextBlock == "" {
		contextBlock = "No additional context."
	}

	return fmt.Sprintf(promptTemplate,
		p.TargetName, p.WorkspacePath,
		unit.Title, unit.Description,
		unit.FilesHintString(),
		p.TestsPassed, p.TestsTotal, p.LintErrors, p.TypeErrors, p.BranchName,
		verificationHint,
		contextBlock,
		p.VerificationCommand,
	)
}

// tailSummary returns the last n bytes of s after trimming surrounding
// whitespace. Only the package tests call it; when no MC_RESULT marker
// is found the dispatcher does not use the output tail as the summary.
func tailSummary(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
