package store

import (
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertPlan persists a newly created Plan.
func (s *Store) InsertPlan(p *models.Plan) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO plans (id, round_id, objective, status, total_units, raw_planner_output)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.RoundID, p.Objective, p.Status, p.TotalUnits, p.RawPlannerOutput,
		)
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		return nil
	})
}

// UpdatePlan overwrites a Plan row in place.
func (s *Store) UpdatePlan(p *models.Plan) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE plans SET status=?, total_units=? WHERE id=?`,
			p.Status, p.TotalUnits, p.ID,
		)
		if err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		return nil
	})
}

// InsertPlanNode persists a newly created PlanNode. Nodes are persisted
// flat, keyed by ParentID; the tree is reconstructed on read using
// ParentID and ChildrenIDs, never via in-memory back-pointers.
func (s *Store) InsertPlanNode(n *models.PlanNode) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO plan_nodes (id, plan_id, parent_id, depth, scope, node_type, strategy, status, children_ids, work_unit_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.PlanID, n.ParentID, n.Depth, n.Scope, n.NodeType, n.Strategy, n.Status,
			joinCSV(n.ChildrenIDs), n.WorkUnitID,
		)
		if err != nil {
			return fmt.Errorf("insert plan node: %w", err)
		}
		return nil
	})
}

// UpdatePlanNode overwrites a PlanNode row in place.
func (s *Store) UpdatePlanNode(n *models.PlanNode) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE plan_nodes SET status=?, children_ids=?, work_unit_id=? WHERE id=?`,
			n.Status, joinCSV(n.ChildrenIDs), n.WorkUnitID, n.ID,
		)
		if err != nil {
			return fmt.Errorf("update plan node: %w", err)
		}
		return nil
	})
}

// ListPlanNodes returns every node of a plan, in no particular order;
// callers reconstruct the tree via ParentID/ChildrenIDs.
func (s *Store) ListPlanNodes(planID string) ([]*models.PlanNode, error) {
	rows, err := s.db.Query(
		`SELECT id, plan_id, parent_id, depth, scope, node_type, strategy, status, children_ids, work_unit_id
		 FROM plan_nodes WHERE plan_id=?`, planID,
	)
	if err != nil {
		return nil, fmt.Errorf("query plan nodes: %w", err)
	}
	defer rows.Close()

	var out []*models.PlanNode
	for rows.Next() {
		var n models.PlanNode
		var children string
		if err := rows.Scan(&n.ID, &n.PlanID, &n.ParentID, &n.Depth, &n.Scope, &n.NodeType, &n.Strategy, &n.Status, &children, &n.WorkUnitID); err != nil {
			return nil, fmt.Errorf("scan plan node: %w", err)
		}
		n.ChildrenIDs = splitCSV(children)
		out = append(out, &n)
	}
	return out, rows.Err()
}
