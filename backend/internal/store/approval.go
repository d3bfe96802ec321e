package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenhq/warden/backend/internal/approval"
)

// SaveApprovalRequest journals a newly-raised approval request for audit
// and crash recovery; the live wait/decide path itself runs in-process
// through approval.Bridge and does not depend on this row.
func (s *Store) SaveApprovalRequest(ctx context.Context, req approval.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_requests
			(id, execution_process_id, tool_name, tool_input, tool_call_id, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.ExecutionProcessID, req.ToolName, string(req.ToolInput), req.ToolCallID,
		string(req.Status), req.Reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: save approval request: %w", err)
	}
	return nil
}

// UpdateApprovalStatus records the final decision against a previously
// saved approval request row.
func (s *Store) UpdateApprovalStatus(ctx context.Context, id string, status approval.Status, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE approval_requests SET status = ?, reason = ? WHERE id = ?`, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("store: update approval status: %w", err)
	}
	return nil
}
