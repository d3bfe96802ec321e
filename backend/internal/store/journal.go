package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wardenhq/warden/backend/internal/workflow"
)

// taskIDForAttempt resolves the task owning attemptID, the join every
// Journal method needs since task status lives on tasks, not task_attempts.
func (s *Store) taskIDForAttempt(ctx context.Context, attemptID string) (string, error) {
	var taskID string
	err := s.db.QueryRowContext(ctx, `SELECT task_id FROM task_attempts WHERE id = ?`, attemptID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: no task_attempt %q", attemptID)
	}
	if err != nil {
		return "", fmt.Errorf("store: resolve task for attempt: %w", err)
	}
	return taskID, nil
}

// CurrentStationID implements workflow.Journal.
func (s *Store) CurrentStationID(ctx context.Context, attemptID string) (string, bool, error) {
	var stationID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT current_station_id FROM task_attempts WHERE id = ?`, attemptID).Scan(&stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("store: no task_attempt %q", attemptID)
	}
	if err != nil {
		return "", false, fmt.Errorf("store: current station: %w", err)
	}
	if !stationID.Valid {
		return "", false, nil
	}
	return stationID.String, true, nil
}

// TaskStatus implements workflow.Journal.
func (s *Store) TaskStatus(ctx context.Context, attemptID string) (workflow.TaskStatus, error) {
	taskID, err := s.taskIDForAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("store: task status: %w", err)
	}
	return workflow.TaskStatus(status), nil
}

// SetTaskStatus implements workflow.Journal.
func (s *Store) SetTaskStatus(ctx context.Context, attemptID string, status workflow.TaskStatus) error {
	taskID, err := s.taskIDForAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), taskID); err != nil {
		return fmt.Errorf("store: set task status: %w", err)
	}
	return nil
}

// RecordStationExecution implements workflow.Journal.
func (s *Store) RecordStationExecution(ctx context.Context, attemptID, stationID string, status workflow.ExecutionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO station_executions (id, task_attempt_id, station_id, status, created_at)
		 VALUES (lower(hex(randomblob(16))), ?, ?, ?, ?)`,
		attemptID, stationID, string(status), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record station execution: %w", err)
	}
	return nil
}

// SetCurrentStation implements workflow.Journal.
func (s *Store) SetCurrentStation(ctx context.Context, attemptID, stationID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE task_attempts SET current_station_id = ? WHERE id = ?`, stationID, attemptID)
	if err != nil {
		return fmt.Errorf("store: set current station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: no task_attempt %q", attemptID)
	}
	return nil
}

// CompleteWorkflowExecution implements workflow.Journal. It upserts the
// attempt's workflow_executions row with a completion timestamp; one
// attempt has at most one workflow_execution, created on first completion.
func (s *Store) CompleteWorkflowExecution(ctx context.Context, attemptID string) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE workflow_executions SET completed_at = ? WHERE task_attempt_id = ?`, now, attemptID)
	if err != nil {
		return fmt.Errorf("store: complete workflow execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, task_attempt_id, completed_at) VALUES (lower(hex(randomblob(16))), ?, ?)`,
		attemptID, now)
	if err != nil {
		return fmt.Errorf("store: insert completed workflow execution: %w", err)
	}
	return nil
}
