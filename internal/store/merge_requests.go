package store

import (
	"database/sql"
	"fmt"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertMergeRequest persists a newly submitted MergeRequest, assigning
// it the next monotonic position via GetNextMergePosition's caller.
func (s *Store) InsertMergeRequest(m *models.MergeRequest) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO merge_requests (id, work_unit_id, worker_id, branch_name, commit_hash, status, position, created_at, verified_at, merged_at, rejection_reason, rebase_attempts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.WorkUnitID, m.WorkerID, m.BranchName, m.CommitHash, m.Status, m.Position,
			formatTime(m.CreatedAt), nullableTime(m.VerifiedAt), nullableTime(m.MergedAt), m.RejectionReason, m.RebaseAttempts,
		)
		if err != nil {
			return fmt.Errorf("insert merge request: %w", err)
		}
		return nil
	})
}

// UpdateMergeRequest overwrites a MergeRequest row in place as it moves
// through verifying -> merged/rejected/conflict.
func (s *Store) UpdateMergeRequest(m *models.MergeRequest) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE merge_requests SET status=?, verified_at=?, merged_at=?, rejection_reason=?, rebase_attempts=?
			 WHERE id=?`,
			m.Status, nullableTime(m.VerifiedAt), nullableTime(m.MergedAt), m.RejectionReason, m.RebaseAttempts, m.ID,
		)
		if err != nil {
			return fmt.Errorf("update merge request: %w", err)
		}
		return nil
	})
}

// GetNextMergePosition returns the position the next submitted merge
// request should take: one past the highest position recorded so far.
func (s *Store) GetNextMergePosition() (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(position) FROM merge_requests`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max merge position: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// ListPendingMergeRequests returns pending/verifying merge requests
// ordered by position, the queue the Green-Branch Manager drains.
func (s *Store) ListPendingMergeRequests() ([]*models.MergeRequest, error) {
	rows, err := s.db.Query(
		`SELECT id, work_unit_id, worker_id, branch_name, commit_hash, status, position, created_at, verified_at, merged_at, rejection_reason, rebase_attempts
		 FROM merge_requests WHERE status IN (?, ?) ORDER BY position ASC`,
		models.MergeRequestPending, models.MergeRequestVerifying,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending merge requests: %w", err)
	}
	defer rows.Close()

	var out []*models.MergeRequest
	for rows.Next() {
		m, err := scanMergeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMergeRequest(row rowScanner) (*models.MergeRequest, error) {
	var m models.MergeRequest
	var created string
	var verified, merged sql.NullString
	if err := row.Scan(&m.ID, &m.WorkUnitID, &m.WorkerID, &m.BranchName, &m.CommitHash, &m.Status, &m.Position,
		&created, &verified, &merged, &m.RejectionReason, &m.RebaseAttempts); err != nil {
		return nil, fmt.Errorf("scan merge request: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse merge request created_at: %w", err)
	}
	m.CreatedAt = t
	if m.VerifiedAt, err = timePtrFromNullable(verified); err != nil {
		return nil, err
	}
	if m.MergedAt, err = timePtrFromNullable(merged); err != nil {
		return nil, err
	}
	return &m, nil
}
