package store

import (
	"database/sql"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertRound persists a newly created Round.
func (s *Store) InsertRound(r *models.Round) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO rounds (id, mission_id, number, status, plan_id, snapshot_hash, objective_score, objective_met, total_units, completed_units, failed_units, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.MissionID, r.Number, r.Status, r.PlanID, r.SnapshotHash,
			r.ObjectiveScore, boolToInt(r.ObjectiveMet), r.TotalUnits, r.CompletedUnits, r.FailedUnits,
			formatTime(r.StartedAt), nullableTime(r.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
		return nil
	})
}

// UpdateRound overwrites a Round row in place.
func (s *Store) UpdateRound(r *models.Round) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE rounds SET status=?, plan_id=?, snapshot_hash=?, objective_score=?, objective_met=?, total_units=?, completed_units=?, failed_units=?, finished_at=?
			 WHERE id=?`,
			r.Status, r.PlanID, r.SnapshotHash, r.ObjectiveScore, boolToInt(r.ObjectiveMet),
			r.TotalUnits, r.CompletedUnits, r.FailedUnits, nullableTime(r.FinishedAt), r.ID,
		)
		if err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		return nil
	})
}

// GetRound loads a Round by id.
func (s *Store) GetRound(id string) (*models.Round, error) {
	row := s.db.QueryRow(
		`SELECT id, mission_id, number, status, plan_id, snapshot_hash, objective_score, objective_met, total_units, completed_units, failed_units, started_at, finished_at
		 FROM rounds WHERE id=?`, id,
	)
	return scanRound(row)
}

// ListRoundsByMission returns every round for a mission, ordered by
// round number ascending.
func (s *Store) ListRoundsByMission(missionID string) ([]*models.Round, error) {
	rows, err := s.db.Query(
		`SELECT id, mission_id, number, status, plan_id, snapshot_hash, objective_score, objective_met, total_units, completed_units, failed_units, started_at, finished_at
		 FROM rounds WHERE mission_id=? ORDER BY number ASC`, missionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []*models.Round
	for rows.Next() {
		r, err := scanRoundRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	return scanRoundRows(row)
}

func scanRoundRows(row rowScanner) (*models.Round, error) {
	var r models.Round
	var objectiveMet int
	var started string
	var finished sql.NullString
	if err := row.Scan(&r.ID, &r.MissionID, &r.Number, &r.Status, &r.PlanID, &r.SnapshotHash,
		&r.ObjectiveScore, &objectiveMet, &r.TotalUnits, &r.CompletedUnits, &r.FailedUnits, &started, &finished); err != nil {
		return nil, fmt.Errorf("scan round: %w", err)
	}
	r.ObjectiveMet = objectiveMet != 0
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse round started_at: %w", err)
	}
	r.StartedAt = t
	fin, err := timePtrFromNullable(finished)
	if err != nil {
		return nil, fmt.Errorf("parse round finished_at: %w", err)
	}
	r.FinishedAt = fin
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
