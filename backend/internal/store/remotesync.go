package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wardenhq/warden/backend/internal/remotesync"
)

// UpsertActivity implements remotesync.Store: it records a replayed or
// live-fed ActivityEvent keyed by its cursor so a duplicate delivery (the
// websocket redelivering something the REST replay already covered) is a
// no-op rather than a constraint violation.
func (s *Store) UpsertActivity(ctx context.Context, ev remotesync.ActivityEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shared_activity (cursor, kind, payload, occurred_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cursor) DO UPDATE SET kind = excluded.kind, payload = excluded.payload, occurred_at = excluded.occurred_at`,
		ev.Cursor, ev.Kind, string(ev.Payload), ev.OccurredAt.Unix())
	if err != nil {
		return fmt.Errorf("store: upsert activity: %w", err)
	}
	return nil
}

// LastCursor implements remotesync.Store: the empty string means "replay
// from the beginning", which is also what a never-synced instance reports.
func (s *Store) LastCursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursor WHERE id = 1`).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: last cursor: %w", err)
	}
	return cursor, nil
}

// SaveCursor implements remotesync.Store.
func (s *Store) SaveCursor(ctx context.Context, cursor string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursor (id, cursor) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor`,
		cursor)
	if err != nil {
		return fmt.Errorf("store: save cursor: %w", err)
	}
	return nil
}
