package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/missioncontrol/missionctl/internal/models"
)

func TestRenderMissionIncludesObjectiveAndRoundTallies(t *testing.T) {
	mission := &models.Mission{
		ID:            "mission-1",
		Objective:     "ship the thing",
		Status:        models.MissionStatusCompleted,
		StoppedReason: models.StoppedReasonObjectiveMet,
		TotalRounds:   2,
		FinalScore:    0.91,
	}
	rounds := []models.Round{
		{ID: "round-1", Number: 1, Status: models.RoundStatusCompleted, ObjectiveScore: 0.4, TotalUnits: 3, CompletedUnits: 2, FailedUnits: 1},
		{ID: "round-2", Number: 2, Status: models.RoundStatusCompleted, ObjectiveScore: 0.91, ObjectiveMet: true, TotalUnits: 2, CompletedUnits: 2},
	}
	handoffs := RoundHandoffs{
		"round-1": {
			{Discoveries: []string{"auth middleware swallows context cancellation"}, Concerns: []string{"flaky integration test"}},
		},
		"round-2": {
			{Discoveries: []string{"no further issues found"}},
		},
	}

	out := RenderMission(mission, rounds, handoffs)

	require.Contains(t, out, "# Mission mission-1")
	require.Contains(t, out, "ship the thing")
	require.Contains(t, out, "objective_met")
	require.Contains(t, out, "## Round 1")
	require.Contains(t, out, "2 completed, 1 failed, 3 total")
	require.Contains(t, out, "auth middleware swallows context cancellation")
	require.Contains(t, out, "### Concerns")
	require.Contains(t, out, "## Round 2")
}

func TestRenderMissionOmitsEmptySections(t *testing.T) {
	mission := &models.Mission{ID: "m", Status: models.MissionStatusRunning}
	rounds := []models.Round{{ID: "r1", Number: 1, Status: models.RoundStatusExecuting}}

	out := RenderMission(mission, rounds, RoundHandoffs{})

	require.NotContains(t, out, "### Discoveries")
	require.NotContains(t, out, "### Concerns")
}

func TestSanitizeInlineFlattensHeadingsAndEmphasis(t *testing.T) {
	got := sanitizeInline("# Escape\n\n**bold** and _italic_ text")
	require.NotContains(t, got, "#")
	require.NotContains(t, got, "*")
	require.Contains(t, got, "Escape")
	require.Contains(t, got, "bold")
	require.Contains(t, got, "italic")
}

func TestSanitizeInlineDropsRawHTML(t *testing.T) {
	got := sanitizeInline("before <script>alert(1)</script> after")
	require.NotContains(t, got, "<script>")
	require.Contains(t, got, "before")
	require.Contains(t, got, "after")
}

func TestSanitizeInlineCollapsesNewlinesToSingleLine(t *testing.T) {
	got := sanitizeInline("line one\nline two\n\nline three")
	require.False(t, strings.Contains(got, "\n"))
	require.Contains(t, got, "line one")
	require.Contains(t, got, "line three")
}

func TestSanitizeInlineEmptyStringYieldsEmptyString(t *testing.T) {
	require.Equal(t, "", sanitizeInline(""))
}
