package store

import (
	"database/sql"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// AppendEvent durably records one UnitEvent. Append-only: there is no
// update or delete path for this table, by design -- the stream is the
// audit trail crash recovery replays.
//
// An event for a work unit with no epoch binding (the unit row does not
// exist yet, e.g. a stray write during mission bootstrap before the
// plan has materialized its units) is silently skipped rather than
// failing the caller, per the store's append contract.
func (s *Store) AppendEvent(e *models.UnitEvent) error {
	return s.lockedCall(func() error {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM work_units WHERE id=?`, e.WorkUnitID).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("check work unit epoch binding: %w", err)
		}

		_, err = s.db.Exec(
			`INSERT INTO unit_events (id, timestamp, mission_id, round_id, work_unit_id, event_type, details, input_tokens, output_tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, formatTime(e.Timestamp), e.MissionID, e.RoundID, e.WorkUnitID, e.EventType, e.Details, e.InputTokens, e.OutputTokens,
		)
		if err != nil {
			return fmt.Errorf("append unit event: %w", err)
		}
		return nil
	})
}

// ReplayEventsByUnit returns every event for a work unit in chronological
// order, the sequence models.DeriveStatus folds over.
func (s *Store) ReplayEventsByUnit(workUnitID string) ([]models.UnitEvent, error) {
	return s.queryEvents(`work_unit_id=? ORDER BY timestamp ASC, rowid ASC`, workUnitID)
}

// ReplayEventsByRound returns every event recorded during a round, in
// chronological order, spanning all of that round's work units.
func (s *Store) ReplayEventsByRound(roundID string) ([]models.UnitEvent, error) {
	return s.queryEvents(`round_id=? ORDER BY timestamp ASC, rowid ASC`, roundID)
}

// ReplayEventsByMission returns the full event history of a mission,
// across every round -- the complete crash-recovery ground truth.
func (s *Store) ReplayEventsByMission(missionID string) ([]models.UnitEvent, error) {
	return s.queryEvents(`mission_id=? ORDER BY timestamp ASC, rowid ASC`, missionID)
}

func (s *Store) queryEvents(whereAndOrder string, arg string) ([]models.UnitEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, mission_id, round_id, work_unit_id, event_type, details, input_tokens, output_tokens
		 FROM unit_events WHERE `+whereAndOrder, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("query unit events: %w", err)
	}
	defer rows.Close()

	var out []models.UnitEvent
	for rows.Next() {
		var e models.UnitEvent
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.MissionID, &e.RoundID, &e.WorkUnitID, &e.EventType, &e.Details, &e.InputTokens, &e.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan unit event: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse unit event timestamp: %w", err)
		}
		e.Timestamp = t
		out = append(out, e)
	}
	return out, rows.Err()
}
