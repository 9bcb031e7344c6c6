package store

import (
	"database/sql"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertMission persists a newly created Mission.
func (s *Store) InsertMission(m *models.Mission) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO missions (id, objective, status, total_rounds, final_score, started_at, finished_at, stopped_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Objective, m.Status, m.TotalRounds, m.FinalScore,
			formatTime(m.StartedAt), nullableTime(m.FinishedAt), m.StoppedReason,
		)
		if err != nil {
			return fmt.Errorf("insert mission: %w", err)
		}
		return nil
	})
}

// UpdateMission overwrites a Mission row in place (used at every round
// boundary and at mission termination).
func (s *Store) UpdateMission(m *models.Mission) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE missions SET objective=?, status=?, total_rounds=?, final_score=?, finished_at=?, stopped_reason=?
			 WHERE id=?`,
			m.Objective, m.Status, m.TotalRounds, m.FinalScore, nullableTime(m.FinishedAt), m.StoppedReason, m.ID,
		)
		if err != nil {
			return fmt.Errorf("update mission: %w", err)
		}
		return nil
	})
}

// GetMission loads a Mission by id.
func (s *Store) GetMission(id string) (*models.Mission, error) {
	row := s.db.QueryRow(
		`SELECT id, objective, status, total_rounds, final_score, started_at, finished_at, stopped_reason
		 FROM missions WHERE id=?`, id,
	)
	return scanMission(row)
}

func scanMission(row *sql.Row) (*models.Mission, error) {
	var m models.Mission
	var started string
	var finished sql.NullString
	if err := row.Scan(&m.ID, &m.Objective, &m.Status, &m.TotalRounds, &m.FinalScore, &started, &finished, &m.StoppedReason); err != nil {
		return nil, fmt.Errorf("scan mission: %w", err)
	}
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse mission started_at: %w", err)
	}
	m.StartedAt = t
	fin, err := timePtrFromNullable(finished)
	if err != nil {
		return nil, fmt.Errorf("parse mission finished_at: %w", err)
	}
	m.FinishedAt = fin
	return &m, nil
}
