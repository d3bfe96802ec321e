package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/backend/internal/workflow"
)

// SaveDraft upserts a draft's full state, so a queued follow-up or retry
// survives a process restart instead of being silently lost.
func (s *Store) SaveDraft(ctx context.Context, snap workflow.DraftSnapshot) error {
	imageIDs, err := json.Marshal(snap.ImageIDs)
	if err != nil {
		return fmt.Errorf("store: marshal draft image ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (attempt_id, kind, prompt, queued, sending, image_ids, variant, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id, kind) DO UPDATE SET
			prompt = excluded.prompt,
			queued = excluded.queued,
			sending = excluded.sending,
			image_ids = excluded.image_ids,
			variant = excluded.variant,
			version = excluded.version`,
		snap.AttemptID, string(snap.Kind), snap.Prompt, snap.Queued, snap.Sending, string(imageIDs), snap.Variant, snap.Version)
	if err != nil {
		return fmt.Errorf("store: save draft: %w", err)
	}
	return nil
}

// LoadDraft restores a previously saved draft, if one exists. The second
// return is false with a zero snapshot when no row is found.
func (s *Store) LoadDraft(ctx context.Context, attemptID string, kind workflow.DraftKind) (workflow.DraftSnapshot, bool, error) {
	var snap workflow.DraftSnapshot
	var imageIDs string
	row := s.db.QueryRowContext(ctx, `
		SELECT attempt_id, kind, prompt, queued, sending, image_ids, variant, version
		FROM drafts WHERE attempt_id = ? AND kind = ?`, attemptID, string(kind))
	var kindStr string
	err := row.Scan(&snap.AttemptID, &kindStr, &snap.Prompt, &snap.Queued, &snap.Sending, &imageIDs, &snap.Variant, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.DraftSnapshot{}, false, nil
	}
	if err != nil {
		return workflow.DraftSnapshot{}, false, fmt.Errorf("store: load draft: %w", err)
	}
	snap.Kind = workflow.DraftKind(kindStr)
	if imageIDs != "" {
		if err := json.Unmarshal([]byte(imageIDs), &snap.ImageIDs); err != nil {
			return workflow.DraftSnapshot{}, false, fmt.Errorf("store: unmarshal draft image ids: %w", err)
		}
	}
	return snap, true, nil
}
