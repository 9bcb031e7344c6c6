// Package planner defines the Planner external interface. Mission
// Control's core never implements planning itself -- an LLM-driven
// planner lives outside this module's scope -- so this package carries
// only the contract plus a deterministic StubPlanner good enough to
// drive the Dispatcher, Green-Branch Manager, and Round Controller
// end to end with no LLM present.
package planner

import (
	"context"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// Planner decomposes a round's objective into a plan tree and its
// flat leaf work units. Any implementation meeting this signature is
// valid; the Round Controller depends only on the interface.
type Planner interface {
	PlanRound(
		ctx context.Context,
		objective string,
		snapshotHash string,
		discoveries []string,
		roundNumber int,
		feedback string,
	) (*models.Plan, []*models.PlanNode, []*models.WorkUnit, error)
}

// StubPlanner deterministically decomposes an objective into a single
// root branch node with one leaf child per work unit (UnitsPerRound of
// them), each carrying one WorkUnit whose title and acceptance criteria
// echo the objective string. It never subdivides, ignores discoveries
// and feedback, and never reuses a prior round's decomposition
// -- sufficient to exercise a mission end to end but never itself
// a stand-in for a real planner's judgment.
type StubPlanner struct {
	// UnitsPerRound is how many leaf work units PlanRound emits; units
	// are independent by default (no DependsOn edges). Defaults to 1.
	UnitsPerRound int
}

// PlanRound implements Planner.
func (p *StubPlanner) PlanRound(
	_ context.Context,
	objective string,
	snapshotHash string,
	discoveries []string,
	roundNumber int,
	feedback string,
) (*models.Plan, []*models.PlanNode, []*models.WorkUnit, error) {
	n := p.UnitsPerRound
	if n <= 0 {
		n = 1
	}

	planID := models.NewID()
	plan := &models.Plan{
		ID:               planID,
		Objective:        objective,
		Status:           models.PlanStatusPending,
		TotalUnits:       n,
		RawPlannerOutput: fmt.Sprintf("stub plan for round %d: %q (snapshot %s)", roundNumber, objective, snapshotHash),
	}

	root := &models.PlanNode{
		ID:       models.NewID(),
		PlanID:   planID,
		Depth:    0,
		Scope:    objective,
		NodeType: models.NodeTypeBranch,
		Strategy: models.StrategyLeaves,
		Status:   models.PlanStatusPending,
	}

	nodes := []*models.PlanNode{root}
	units := make([]*models.WorkUnit, 0, n)

	for i := 0; i < n; i++ {
		unit := &models.WorkUnit{
			ID:                 models.NewID(),
			PlanID:             planID,
			Title:              fmt.Sprintf("%s (part %d/%d)", objective, i+1, n),
			Description:        objective,
			AcceptanceCriteria: objective,
			Priority:           i + 1,
			Status:             models.UnitStatusPending,
			MaxAttempts:        models.DefaultMaxAttempts,
		}
		leaf := &models.PlanNode{
			ID:         models.NewID(),
			PlanID:     planID,
			ParentID:   root.ID,
			Depth:      1,
			Scope:      unit.Title,
			NodeType:   models.NodeTypeLeaf,
			Status:     models.PlanStatusPending,
			WorkUnitID: unit.ID,
		}
		unit.PlanNodeID = leaf.ID
		root.ChildrenIDs = append(root.ChildrenIDs, leaf.ID)
		nodes = append(nodes, leaf)
		units = append(units, unit)
	}

	return plan, nodes, units, nil
}
