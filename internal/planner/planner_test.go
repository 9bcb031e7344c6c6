package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubPlannerDefaultsToOneUnit(t *testing.T) {
	p := &StubPlanner{}
	plan, nodes, units, err := p.PlanRound(context.Background(), "fix the bug", "abc123", nil, 1, "")
	require.NoError(t, err)
	require.Equal(t, 1, plan.TotalUnits)
	require.Len(t, units, 1)
	require.Len(t, nodes, 2) // root + one leaf
	require.True(t, nodes[0].NodeType == "branch")
	require.Equal(t, units[0].ID, nodes[1].WorkUnitID)
	require.Equal(t, nodes[1].ID, units[0].PlanNodeID)
}

func TestStubPlannerMultipleIndependentUnits(t *testing.T) {
	p := &StubPlanner{UnitsPerRound: 3}
	plan, nodes, units, err := p.PlanRound(context.Background(), "refactor module", "deadbeef", []string{"disc1"}, 2, "prior feedback")
	require.NoError(t, err)
	require.Equal(t, 3, plan.TotalUnits)
	require.Len(t, units, 3)
	require.Len(t, nodes, 4) // root + 3 leaves

	root := nodes[0]
	require.Len(t, root.ChildrenIDs, 3)
	for _, u := range units {
		require.Empty(t, u.DependsOn)
	}
}
