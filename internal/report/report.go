// Package report renders a Mission and its Rounds as a single markdown
// document -- the human-facing summary an operator reads after a run
// stops. Round and Handoff free-text fields (Summary, Discoveries,
// Concerns) originate from worker output, not from this program, so
// they are parsed through goldmark's AST and flattened to plain text
// before being embedded: a worker that emits "## Escape\n" in its
// summary must not be able to open a new heading in the rendered
// report.
package report

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/missioncontrol/missionctl/internal/models"
)

// RoundHandoffs maps a round ID to the handoffs filed against it, in
// completion order.
type RoundHandoffs map[string][]models.Handoff

// RenderMission builds the markdown report for a mission: objective,
// final status, and one section per round with its score, unit tally,
// and the sanitized discoveries/concerns carried in that round's
// handoffs. rounds must be supplied in ascending Number order.
func RenderMission(mission *models.Mission, rounds []models.Round, handoffs RoundHandoffs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Mission %s\n\n", mission.ID)
	fmt.Fprintf(&b, "**Objective:** %s\n\n", sanitizeInline(mission.Objective))
	fmt.Fprintf(&b, "**Status:** %s", mission.Status)
	if mission.StoppedReason != "" {
		fmt.Fprintf(&b, " (%s)", mission.StoppedReason)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**Final score:** %.2f\n\n", mission.FinalScore)
	fmt.Fprintf(&b, "**Rounds run:** %d\n\n", mission.TotalRounds)

	for _, round := range rounds {
		renderRound(&b, round, handoffs[round.ID])
	}

	return b.String()
}

func renderRound(b *strings.Builder, round models.Round, hs []models.Handoff) {
	fmt.Fprintf(b, "## Round %d\n\n", round.Number)
	fmt.Fprintf(b, "- status: %s\n", round.Status)
	fmt.Fprintf(b, "- objective score: %.2f (met: %t)\n", round.ObjectiveScore, round.ObjectiveMet)
	fmt.Fprintf(b, "- units: %d completed, %d failed, %d total\n\n", round.CompletedUnits, round.FailedUnits, round.TotalUnits)

	discoveries := collectField(hs, func(h models.Handoff) []string { return h.Discoveries })
	concerns := collectField(hs, func(h models.Handoff) []string { return h.Concerns })

	if len(discoveries) > 0 {
		b.WriteString("### Discoveries\n\n")
		for _, d := range discoveries {
			fmt.Fprintf(b, "- %s\n", sanitizeInline(d))
		}
		b.WriteString("\n")
	}

	if len(concerns) > 0 {
		b.WriteString("### Concerns\n\n")
		for _, c := range concerns {
			fmt.Fprintf(b, "- %s\n", sanitizeInline(c))
		}
		b.WriteString("\n")
	}
}

func collectField(hs []models.Handoff, get func(models.Handoff) []string) []string {
	var out []string
	for _, h := range hs {
		out = append(out, get(h)...)
	}
	return out
}

// sanitizeInline parses s as markdown and flattens it back to plain
// text: headings, lists, and emphasis all collapse to their literal
// text content, and raw HTML and embedded links are dropped. The
// result is safe to embed as a single bullet or table cell in the
// surrounding report without changing the document's structure.
func sanitizeInline(s string) string {
	if s == "" {
		return ""
	}

	md := goldmark.New()
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))

	var out strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindText:
			t := n.(*ast.Text)
			out.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				out.WriteByte(' ')
			}
		case ast.KindRawHTML, ast.KindHTMLBlock, ast.KindAutoLink:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	flattened := strings.Join(strings.Fields(out.String()), " ")
	if flattened == "" {
		// Fell through with nothing extracted (e.g. the input was pure
		// raw HTML); fall back to the original text with markdown's own
		// structural characters neutralized.
		return neutralizeMarkdown(s)
	}
	return flattened
}

// neutralizeMarkdown escapes the characters goldmark treats as block
// or inline structure, for text that survived sanitizeInline's AST
// walk with nothing recognizable as content.
func neutralizeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"`", "\\`",
		"<", "\\<",
		"[", "\\[",
	)
	oneLine := strings.Join(strings.Fields(s), " ")
	return replacer.Replace(oneLine)
}
