// Package verify implements the Verification Runner: pluggable
// per-kind shell commands (pytest/ruff/mypy/bandit/custom) executed
// against a workspace directory and folded into a VerificationReport,
// plus the project-health snapshot/delta comparison the Round
// Controller uses to evaluate an objective.
package verify

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	mcmetrics "github.com/missioncontrol/missionctl/internal/metrics"
	"github.com/missioncontrol/missionctl/internal/models"
)

// MetricParser extracts kind-specific metrics from a verification
// command's combined output. Returns an empty map for kinds with no
// specialized parser (models.VerificationKindCustom): only exit-code
// pass/fail is derived for those.
type MetricParser func(output string) map[string]int

// parsers is the kind -> MetricParser registry, keyed the same way
// the teacher's internal/executor/qc.go keys domain checks by file
// extension -- a flat map, not a switch, so a new kind only needs one
// new map entry and one new parser function.
var parsers = map[models.VerificationNodeKind]MetricParser{
	models.VerificationKindPytest: parsePytest,
	models.VerificationKindRuff:   parseRuff,
	models.VerificationKindMypy:   parseMypy,
	models.VerificationKindBandit: parseBandit,
}

var (
	pytestPassedRe = regexp.MustCompile(`(\d+) passed`)
	pytestFailedRe = regexp.MustCompile(`(\d+) failed`)
	pytestErrorRe  = regexp.MustCompile(`(\d+) error`)
	ruffLineRe     = regexp.MustCompile(`.+:\d+:\d+:`)
	mypyLineRe     = regexp.MustCompile(`\S+\.py:\d+: error:`)
)

func parsePytest(output string) map[string]int {
	passed := atoiMatch(pytestPassedRe, output)
	failed := atoiMatch(pytestFailedRe, output) + atoiMatch(pytestErrorRe, output)
	return map[string]int{
		"test_total":  passed + failed,
		"test_passed": passed,
		"test_failed": failed,
	}
}

func parseRuff(output string) map[string]int {
	if strings.TrimSpace(output) == "" || strings.Contains(output, "All checks passed") {
		return map[string]int{"lint_errors": 0}
	}
	n := 0
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if ruffLineRe.MatchString(line) {
			n++
		}
	}
	return map[string]int{"lint_errors": n}
}

// parseMypy uses an anchored regex (file.py:line: error:) rather than
// a bare "error:" substring match, so a pytest traceback embedded in
// the same combined output never double-counts as a type error.
func parseMypy(output string) map[string]int {
	if strings.Contains(output, "Success") {
		return map[string]int{"type_errors": 0}
	}
	n := 0
	for _, line := range strings.Split(output, "\n") {
		if mypyLineRe.MatchString(line) {
			n++
		}
	}
	return map[string]int{"type_errors": n}
}

func parseBandit(output string) map[string]int {
	if strings.Contains(output, "No issues identified") {
		return map[string]int{"security_findings": 0}
	}
	n := strings.Count(output, ">> Issue:")
	return map[string]int{"security_findings": n}
}

func atoiMatch(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Runner executes VerificationNodes against a workspace directory.
type Runner struct {
	// Nodes is the configured set of typed verification checks. When
	// empty, Verify falls back to FallbackCommand run as one combined
	// command, the same backward-compat path the reference
	// implementation's run_verification_nodes takes when no typed nodes
	// are configured.
	Nodes           []models.VerificationNode
	FallbackCommand string

	// runShell, if set, overrides exec.CommandContext("sh", "-c", cmd)
	// for testing; production use leaves this nil and gets runShellCommand.
	runShell func(ctx context.Context, dir, command string) (string, error)
}

// New constructs a Runner that shells out via sh -c.
func New(nodes []models.VerificationNode, fallbackCommand string) *Runner {
	return &Runner{Nodes: nodes, FallbackCommand: fallbackCommand, runShell: runShellCommand}
}

// RunAcceptance implements greenbranch.AcceptanceRunner, so the same
// Runner a Manager uses for pre-merge verification can also judge a
// merged batch's acceptance criteria -- both are just a shell command
// run in a workspace, evaluated on exit status.
func (r *Runner) RunAcceptance(ctx context.Context, workspace, criteria string, timeout time.Duration) (bool, string, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := r.runShell(runCtx, workspace, criteria)
	if err != nil {
		if exitCodeOf(err) > 0 {
			return false, output, nil
		}
		return false, output, err
	}
	return true, output, nil
}

// Verify implements greenbranch.Verifier, so a Runner can be wired
// directly into a greenbranch.Manager as its verification collaborator.
func (r *Runner) Verify(ctx context.Context, workspace string) (*models.VerificationReport, error) {
	var report *models.VerificationReport
	if len(r.Nodes) == 0 && r.FallbackCommand != "" {
		report = r.runFallback(ctx, workspace)
	} else {
		report = r.RunNodes(ctx, workspace, r.Nodes)
	}

	if report.OverallPassed() {
		mcmetrics.VerificationPass.Inc()
	} else {
		mcmetrics.VerificationFail.Inc()
	}
	return report, nil
}

// runFallback runs one combined command and builds all four metric
// results from its single output, mirroring
// _build_result_from_single_command's backward-compat behavior: a
// zero exit code forces every kind to report passed regardless of
// what its parser finds, since a single combined command conflates
// lint/type/security tooling that may each emit nonzero exit codes
// on warnings alone.
func (r *Runner) runFallback(ctx context.Context, workspace string) *models.VerificationReport {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	output, err := r.runShell(runCtx, workspace, r.FallbackCommand)
	exitCode := 0
	if err != nil {
		exitCode = exitCodeOf(err)
	}
	passed := exitCode == 0

	kinds := []models.VerificationNodeKind{
		models.VerificationKindPytest,
		models.VerificationKindRuff,
		models.VerificationKindMypy,
		models.VerificationKindBandit,
	}
	results := make([]models.VerificationResult, 0, len(kinds))
	for _, kind := range kinds {
		results = append(results, models.VerificationResult{
			Kind:     kind,
			Passed:   passed,
			ExitCode: exitCode,
			Output:   output,
			Metrics:  parsers[kind](output),
			Required: true,
			Weight:   1,
		})
	}
	return &models.VerificationReport{Results: results, RawOutput: output}
}

// RunNodes runs every required node sequentially (stop-on-first-
// required-failure is NOT applied here -- spec.md's required nodes
// all run so the report captures every metric, matching
// run_verification_nodes's accumulate-all-results behavior), then
// every optional node concurrently, and folds everything into one
// VerificationReport.
func (r *Runner) RunNodes(ctx context.Context, workspace string, nodes []models.VerificationNode) *models.VerificationReport {
	if len(nodes) == 0 {
		return &models.VerificationReport{}
	}

	var required, optional []models.VerificationNode
	for _, n := range nodes {
		if n.Required {
			required = append(required, n)
		} else {
			optional = append(optional, n)
		}
	}

	var results []models.VerificationResult
	for _, n := range required {
		results = append(results, r.runNode(ctx, workspace, n))
	}

	if len(optional) > 0 {
		type indexed struct {
			i int
			r models.VerificationResult
		}
		out := make(chan indexed, len(optional))
		for i, n := range optional {
			go func(i int, n models.VerificationNode) {
				out <- indexed{i, r.runNode(ctx, workspace, n)}
			}(i, n)
		}
		collected := make([]models.VerificationResult, len(optional))
		for range optional {
			item := <-out
			collected[item.i] = item.r
		}
		results = append(results, collected...)
	}

	var raw strings.Builder
	for i, res := range results {
		if i > 0 {
			raw.WriteByte('\n')
		}
		raw.WriteString(res.Output)
	}
	return &models.VerificationReport{Results: results, RawOutput: raw.String()}
}

func (r *Runner) runNode(ctx context.Context, workspace string, node models.VerificationNode) models.VerificationResult {
	timeout := node.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := r.runShell(runCtx, workspace, node.Command)
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		exitCode = exitCodeOf(err)
	}

	mcmetrics.VerificationDuration.WithLabelValues(string(node.Kind)).Observe(duration.Seconds())

	var nodeMetrics map[string]int
	if parser, ok := parsers[node.Kind]; ok {
		nodeMetrics = parser(output)
	}

	return models.VerificationResult{
		Kind:     node.Kind,
		Passed:   err == nil,
		ExitCode: exitCode,
		Output:   output,
		Metrics:  nodeMetrics,
		Duration: duration,
		Required: node.Required,
		Weight:   node.Weight,
	}
}

func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func runShellCommand(ctx context.Context, dir, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
