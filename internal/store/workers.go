package store

import (
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertWorker records a newly spawned worker slot.
func (s *Store) InsertWorker(w *models.Worker) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO workers (id, workspace_path, status, current_unit_id, pid, started_at, last_heartbeat, units_completed, units_failed, total_cost_usd)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.WorkspacePath, w.Status, w.CurrentUnitID, w.PID,
			formatTime(w.StartedAt), formatTime(w.LastHeartbeat), w.UnitsCompleted, w.UnitsFailed, w.TotalCostUSD,
		)
		if err != nil {
			return fmt.Errorf("insert worker: %w", err)
		}
		return nil
	})
}

// UpdateWorker overwrites a worker's status row in place.
func (s *Store) UpdateWorker(w *models.Worker) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE workers SET status=?, current_unit_id=?, pid=?, last_heartbeat=?, units_completed=?, units_failed=?, total_cost_usd=?
			 WHERE id=?`,
			w.Status, w.CurrentUnitID, w.PID, formatTime(w.LastHeartbeat), w.UnitsCompleted, w.UnitsFailed, w.TotalCostUSD, w.ID,
		)
		if err != nil {
			return fmt.Errorf("update worker: %w", err)
		}
		return nil
	})
}

// ListWorkers returns every known worker slot, live or dead.
func (s *Store) ListWorkers() ([]*models.Worker, error) {
	rows, err := s.db.Query(
		`SELECT id, workspace_path, status, current_unit_id, pid, started_at, last_heartbeat, units_completed, units_failed, total_cost_usd
		 FROM workers`,
	)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var out []*models.Worker
	for rows.Next() {
		var w models.Worker
		var started, heartbeat string
		if err := rows.Scan(&w.ID, &w.WorkspacePath, &w.Status, &w.CurrentUnitID, &w.PID, &started, &heartbeat, &w.UnitsCompleted, &w.UnitsFailed, &w.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		st, err := parseTime(started)
		if err != nil {
			return nil, fmt.Errorf("parse worker started_at: %w", err)
		}
		hb, err := parseTime(heartbeat)
		if err != nil {
			return nil, fmt.Errorf("parse worker last_heartbeat: %w", err)
		}
		w.StartedAt = st
		w.LastHeartbeat = hb
		out = append(out, &w)
	}
	return out, rows.Err()
}
