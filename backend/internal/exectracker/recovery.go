package exectracker

import (
	"context"
	"fmt"
)

// DanglingExecution is the minimal view recovery needs of a persisted
// execution_processes row left in status "running" by a prior process.
type DanglingExecution struct {
	ID        string
	RunReason string
	TaskID    string
}

// RunReasonCodingAgent etc. mirror the run_reason values that gate whether a
// dangling execution also moves its owning Task to in-review.
const (
	RunReasonCodingAgent = "coding-agent"
	RunReasonSetupScript = "setup-script"
	RunReasonCleanup     = "cleanup-script"
)

// Store is the narrow persistence surface recovery needs: list what was
// left running, and mark it failed (plus move the owning task to
// in-review for agent/setup/cleanup runs).
type Store interface {
	ListRunning(ctx context.Context) ([]DanglingExecution, error)
	MarkExecutionFailed(ctx context.Context, id string) error
	MarkTaskInReview(ctx context.Context, taskID string) error
}

// Recover runs the startup sweep: every execution persisted as "running" is
// necessarily dead (this process just started, so it cannot be tracking
// it), so each is marked failed, and its owning task moved to in-review if
// the run reason is one a human should look at. Idempotent: running it
// again against a Store where nothing is left "running" is a no-op.
func Recover(ctx context.Context, store Store) (recovered int, err error) {
	dangling, err := store.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("exectracker: list running: %w", err)
	}

	for _, d := range dangling {
		if err := store.MarkExecutionFailed(ctx, d.ID); err != nil {
			return recovered, fmt.Errorf("exectracker: mark %s failed: %w", d.ID, err)
		}
		switch d.RunReason {
		case RunReasonCodingAgent, RunReasonSetupScript, RunReasonCleanup:
			if err := store.MarkTaskInReview(ctx, d.TaskID); err != nil {
				return recovered, fmt.Errorf("exectracker: mark task %s in-review: %w", d.TaskID, err)
			}
		}
		recovered++
	}
	return recovered, nil
}
