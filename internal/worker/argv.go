package worker

import "fmt"

// DefaultArgv builds the default worker command line: the `claude` CLI
// run as a bypass-permissions coding agent against prompt, the shape
// the reference worker implementation spawns. Backend.Spawn treats
// this as opaque argv -- any other command producing an MC_RESULT
// marker on stdout works identically.
func DefaultArgv(claudePath, model string, maxBudgetUSD float64, prompt string) []string {
	if claudePath == "" {
		claudePath = "claude"
	}
	return []string{
		claudePath,
		"-p",
		"--output-format", "stream-json",
		"--permission-mode", "bypassPermissions",
		"--model", model,
		"--max-budget-usd", fmt.Sprintf("%.2f", maxBudgetUSD),
		prompt,
	}
}
