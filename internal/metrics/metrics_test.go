package metrics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePrometheusEmitsRegisteredSeries(t *testing.T) {
	RoundsStarted.Inc()
	UnitsCompleted.Inc()
	WorkspacePoolCapacity.Set(8)

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))

	out := buf.String()
	require.Contains(t, out, "missionctl_rounds_started_total")
	require.Contains(t, out, "missionctl_units_completed_total")
	require.Contains(t, out, "missionctl_workspace_pool_capacity")
}

func TestUnitsFailedAndMergeConflictsAreLabeledAndCounted(t *testing.T) {
	UnitsFailed.WithLabelValues("infrastructure").Inc()
	MergeConflicts.Inc()

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))

	out := buf.String()
	require.Contains(t, out, `missionctl_units_failed_total{category="infrastructure"}`)
	require.Contains(t, out, "missionctl_merge_conflicts_total")
}
