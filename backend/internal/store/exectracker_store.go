package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenhq/warden/backend/internal/exectracker"
)

// CreateExecutionProcess journals a newly-spawned ExecutionProcess as
// running, so a crash before it completes leaves a row ListRunning (and
// therefore exectracker.Recover) can find on the next startup.
func (s *Store) CreateExecutionProcess(ctx context.Context, id, attemptID, runReason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_processes (id, task_attempt_id, run_reason, status, started_at)
		 VALUES (?, ?, ?, 'running', ?)`,
		id, attemptID, runReason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: create execution process: %w", err)
	}
	return nil
}

// CompleteExecutionProcess records the terminal status of a previously
// created ExecutionProcess.
func (s *Store) CompleteExecutionProcess(ctx context.Context, id string, success bool, exitCode int) error {
	status := "completed"
	if !success {
		status = "failed"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE execution_processes SET status = ?, exit_code = ?, completed_at = ? WHERE id = ?`,
		status, exitCode, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: complete execution process: %w", err)
	}
	return nil
}

// TaskIDForExecutionProcess resolves the task owning the attempt that ran
// executionProcessID, so an approval request raised mid-execution can mark
// its owning task in-review.
func (s *Store) TaskIDForExecutionProcess(ctx context.Context, executionProcessID string) (string, error) {
	var taskID string
	err := s.db.QueryRowContext(ctx, `
		SELECT ta.task_id
		FROM execution_processes ep
		JOIN task_attempts ta ON ta.id = ep.task_attempt_id
		WHERE ep.id = ?`, executionProcessID).Scan(&taskID)
	if err != nil {
		return "", fmt.Errorf("store: task for execution process: %w", err)
	}
	return taskID, nil
}

// ListRunning implements exectracker.Store: every execution_processes row
// still marked "running" when this process starts is necessarily dead.
func (s *Store) ListRunning(ctx context.Context) ([]exectracker.DanglingExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ep.id, ep.run_reason, ta.task_id
		FROM execution_processes ep
		JOIN task_attempts ta ON ta.id = ep.task_attempt_id
		WHERE ep.status = 'running'`)
	if err != nil {
		return nil, fmt.Errorf("store: list running executions: %w", err)
	}
	defer rows.Close()

	var out []exectracker.DanglingExecution
	for rows.Next() {
		var d exectracker.DanglingExecution
		if err := rows.Scan(&d.ID, &d.RunReason, &d.TaskID); err != nil {
			return nil, fmt.Errorf("store: scan dangling execution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list running executions: %w", err)
	}
	return out, nil
}

// MarkExecutionFailed implements exectracker.Store.
func (s *Store) MarkExecutionFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE execution_processes SET status = 'failed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark execution failed: %w", err)
	}
	return nil
}

// MarkTaskInReview implements exectracker.Store.
func (s *Store) MarkTaskInReview(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = 'in-review' WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("store: mark task in-review: %w", err)
	}
	return nil
}
