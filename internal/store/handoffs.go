package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertHandoff persists a worker's terminal report. The list fields
// round-trip through JSON rather than CSV since entries (discoveries,
// concerns) may themselves contain commas.
func (s *Store) InsertHandoff(h *models.Handoff) error {
	commits, err := json.Marshal(nonNil(h.Commits))
	if err != nil {
		return fmt.Errorf("marshal handoff commits: %w", err)
	}
	discoveries, err := json.Marshal(nonNil(h.Discoveries))
	if err != nil {
		return fmt.Errorf("marshal handoff discoveries: %w", err)
	}
	concerns, err := json.Marshal(nonNil(h.Concerns))
	if err != nil {
		return fmt.Errorf("marshal handoff concerns: %w", err)
	}
	filesChanged, err := json.Marshal(nonNil(h.FilesChanged))
	if err != nil {
		return fmt.Errorf("marshal handoff files_changed: %w", err)
	}

	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO handoffs (id, work_unit_id, round_id, status, summary, commits, discoveries, concerns, files_changed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.WorkUnitID, h.RoundID, h.Status, h.Summary, string(commits), string(discoveries), string(concerns), string(filesChanged),
		)
		if err != nil {
			return fmt.Errorf("insert handoff: %w", err)
		}
		return nil
	})
}

// GetHandoffByWorkUnit returns the most recently inserted handoff for a
// work unit, or nil if none exists yet.
func (s *Store) GetHandoffByWorkUnit(workUnitID string) (*models.Handoff, error) {
	row := s.db.QueryRow(
		`SELECT id, work_unit_id, round_id, status, summary, commits, discoveries, concerns, files_changed
		 FROM handoffs WHERE work_unit_id=? ORDER BY rowid DESC LIMIT 1`, workUnitID,
	)
	h, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// ListHandoffsByRound returns every handoff recorded during a round.
func (s *Store) ListHandoffsByRound(roundID string) ([]*models.Handoff, error) {
	rows, err := s.db.Query(
		`SELECT id, work_unit_id, round_id, status, summary, commits, discoveries, concerns, files_changed
		 FROM handoffs WHERE round_id=? ORDER BY rowid ASC`, roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("query handoffs: %w", err)
	}
	defer rows.Close()

	var out []*models.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHandoff(row rowScanner) (*models.Handoff, error) {
	var h models.Handoff
	var commits, discoveries, concerns, filesChanged string
	if err := row.Scan(&h.ID, &h.WorkUnitID, &h.RoundID, &h.Status, &h.Summary, &commits, &discoveries, &concerns, &filesChanged); err != nil {
		return nil, fmt.Errorf("scan handoff: %w", err)
	}
	if err := json.Unmarshal([]byte(commits), &h.Commits); err != nil {
		return nil, fmt.Errorf("unmarshal handoff commits: %w", err)
	}
	if err := json.Unmarshal([]byte(discoveries), &h.Discoveries); err != nil {
		return nil, fmt.Errorf("unmarshal handoff discoveries: %w", err)
	}
	if err := json.Unmarshal([]byte(concerns), &h.Concerns); err != nil {
		return nil, fmt.Errorf("unmarshal handoff concerns: %w", err)
	}
	if err := json.Unmarshal([]byte(filesChanged), &h.FilesChanged); err != nil {
		return nil, fmt.Errorf("unmarshal handoff files_changed: %w", err)
	}
	return &h, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
