package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/missioncontrol/missionctl/internal/models"
)

// InsertWorkUnit persists a newly created WorkUnit.
func (s *Store) InsertWorkUnit(u *models.WorkUnit) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`INSERT INTO work_units (id, plan_id, plan_node_id, title, description, files_hint, verification_hint,
				acceptance_criteria, priority, status, worker_id, depends_on, branch_name, claimed_at, heartbeat_at,
				started_at, finished_at, exit_code, commit_hash, output_summary, attempt, max_attempts, timeout_seconds, cost_usd)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.PlanID, u.PlanNodeID, u.Title, u.Description, joinCSV(u.FilesHint), u.VerificationHint,
			u.AcceptanceCriteria, u.Priority, u.Status, u.WorkerID, joinCSV(u.DependsOn), u.BranchName,
			nullableTime(u.ClaimedAt), nullableTime(u.HeartbeatAt), nullableTime(u.StartedAt), nullableTime(u.FinishedAt),
			nullableInt(u.ExitCode), u.CommitHash, u.OutputSummary, u.Attempt, u.MaxAttempts,
			nullableDurationSeconds(u.Timeout), u.CostUSD,
		)
		if err != nil {
			return fmt.Errorf("insert work unit: %w", err)
		}
		return nil
	})
}

// UpdateWorkUnit overwrites a WorkUnit row's run-state columns in place
// (status, worker, branch, timestamps, exit code, commit, summary,
// attempt, cost). The plan-time columns (title, description, hints,
// priority, depends_on, max_attempts, timeout) keep their inserted
// values. The mutable status column is a cache over the event stream;
// callers that need the ground truth should prefer replay via
// DeriveStatus.
func (s *Store) UpdateWorkUnit(u *models.WorkUnit) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(
			`UPDATE work_units SET status=?, worker_id=?, branch_name=?, claimed_at=?, heartbeat_at=?, started_at=?,
				finished_at=?, exit_code=?, commit_hash=?, output_summary=?, attempt=?, cost_usd=?
			 WHERE id=?`,
			u.Status, u.WorkerID, u.BranchName, nullableTime(u.ClaimedAt), nullableTime(u.HeartbeatAt),
			nullableTime(u.StartedAt), nullableTime(u.FinishedAt), nullableInt(u.ExitCode), u.CommitHash,
			u.OutputSummary, u.Attempt, u.CostUSD, u.ID,
		)
		if err != nil {
			return fmt.Errorf("update work unit: %w", err)
		}
		return nil
	})
}

// TouchHeartbeat updates only a unit's heartbeat timestamp, used by the
// dispatcher's per-unit heartbeat ticker.
func (s *Store) TouchHeartbeat(unitID string, at time.Time) error {
	return s.lockedCall(func() error {
		_, err := s.db.Exec(`UPDATE work_units SET heartbeat_at=? WHERE id=?`, formatTime(at), unitID)
		if err != nil {
			return fmt.Errorf("touch heartbeat: %w", err)
		}
		return nil
	})
}

// GetWorkUnit loads a WorkUnit by id.
func (s *Store) GetWorkUnit(id string) (*models.WorkUnit, error) {
	row := s.db.QueryRow(
		`SELECT id, plan_id, plan_node_id, title, description, files_hint, verification_hint, acceptance_criteria,
			priority, status, worker_id, depends_on, branch_name, claimed_at, heartbeat_at, started_at, finished_at,
			exit_code, commit_hash, output_summary, attempt, max_attempts, timeout_seconds, cost_usd
		 FROM work_units WHERE id=?`, id,
	)
	return scanWorkUnit(row)
}

// ListWorkUnitsByPlan returns every work unit belonging to a plan.
func (s *Store) ListWorkUnitsByPlan(planID string) ([]*models.WorkUnit, error) {
	rows, err := s.db.Query(
		`SELECT id, plan_id, plan_node_id, title, description, files_hint, verification_hint, acceptance_criteria,
			priority, status, worker_id, depends_on, branch_name, claimed_at, heartbeat_at, started_at, finished_at,
			exit_code, commit_hash, output_summary, attempt, max_attempts, timeout_seconds, cost_usd
		 FROM work_units WHERE plan_id=?`, planID,
	)
	if err != nil {
		return nil, fmt.Errorf("query work units: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkUnit
	for rows.Next() {
		u, err := scanWorkUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanWorkUnit(row rowScanner) (*models.WorkUnit, error) {
	var u models.WorkUnit
	var filesHint, dependsOn string
	var claimedAt, heartbeatAt, startedAt, finishedAt sql.NullString
	var exitCode sql.NullInt64
	var timeoutSeconds sql.NullInt64

	if err := row.Scan(&u.ID, &u.PlanID, &u.PlanNodeID, &u.Title, &u.Description, &filesHint, &u.VerificationHint,
		&u.AcceptanceCriteria, &u.Priority, &u.Status, &u.WorkerID, &dependsOn, &u.BranchName,
		&claimedAt, &heartbeatAt, &startedAt, &finishedAt, &exitCode, &u.CommitHash, &u.OutputSummary,
		&u.Attempt, &u.MaxAttempts, &timeoutSeconds, &u.CostUSD); err != nil {
		return nil, fmt.Errorf("scan work unit: %w", err)
	}

	u.FilesHint = splitCSV(filesHint)
	u.DependsOn = splitCSV(dependsOn)
	u.ExitCode = intPtrFromNullable(exitCode)

	var err error
	if u.ClaimedAt, err = timePtrFromNullable(claimedAt); err != nil {
		return nil, err
	}
	if u.HeartbeatAt, err = timePtrFromNullable(heartbeatAt); err != nil {
		return nil, err
	}
	if u.StartedAt, err = timePtrFromNullable(startedAt); err != nil {
		return nil, err
	}
	if u.FinishedAt, err = timePtrFromNullable(finishedAt); err != nil {
		return nil, err
	}
	u.Timeout = durationFromNullableSeconds(timeoutSeconds)

	return &u, nil
}
