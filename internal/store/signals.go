package store

import (
	"fmt"
	"time"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertSignal records a newly issued control-plane signal.
func (s *Store) InsertSignal(sig *models.Signal) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO signals (id, mission_id, signal_type, payload, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sig.ID, sig.MissionID, sig.Type, sig.Payload, sig.Status, formatTime(sig.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
		return nil
	})
}

// AcknowledgeSignal marks a signal acknowledged, the Round Controller's
// receipt of it at a round boundary.
func (s *Store) AcknowledgeSignal(id string) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(`UPDATE signals SET status=? WHERE id=?`, models.SignalStatusAcknowledged, id)
		if err != nil {
			return fmt.Errorf("acknowledge signal: %w", err)
		}
		return nil
	})
}

// ExpireStaleSignals marks every pending signal older than the given
// age (by created_at) expired, so a crashed or unresponsive controller
// does not leave stale signals pending forever.
func (s *Store) ExpireStaleSignals(olderThan time.Time) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE signals SET status=? WHERE status=? AND created_at < ?`,
			models.SignalStatusExpired, models.SignalStatusPending, formatTime(olderThan),
		)
		if err != nil {
			return fmt.Errorf("expire stale signals: %w", err)
		}
		return nil
	})
}

// ListPendingSignals returns every pending signal for a mission, in the
// order they were created.
func (s *Store) ListPendingSignals(missionID string) ([]*models.Signal, error) {
	rows, err := s.db.Query(
		`SELECT id, mission_id, signal_type, payload, status, created_at
		 FROM signals WHERE mission_id=? AND status=? ORDER BY created_at ASC`,
		missionID, models.SignalStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending signals: %w", err)
	}
	defer rows.Close()

	var out []*models.Signal
	for rows.Next() {
		var sig models.Signal
		var created string
		if err := rows.Scan(&sig.ID, &sig.MissionID, &sig.Type, &sig.Payload, &sig.Status, &created); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("parse signal created_at: %w", err)
		}
		sig.CreatedAt = t
		out = append(out, &sig)
	}
	return out, rows.Err()
}
