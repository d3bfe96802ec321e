package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wardenhq/warden/backend/internal/remotesync"
)

func TestRemoteSyncCursorRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if got, err := s.LastCursor(ctx); err != nil || got != "" {
		t.Fatalf("LastCursor on empty store = %q, %v; want \"\", nil", got, err)
	}

	ev := remotesync.ActivityEvent{Cursor: "c1", Kind: "task_attempt_updated", Payload: json.RawMessage(`{"id":"a1"}`), OccurredAt: time.Unix(100, 0)}
	if err := s.UpsertActivity(ctx, ev); err != nil {
		t.Fatalf("UpsertActivity: %v", err)
	}
	if err := s.SaveCursor(ctx, "c1"); err != nil {
		t.Fatalf("SaveCursor: %v", err)
	}
	if got, err := s.LastCursor(ctx); err != nil || got != "c1" {
		t.Fatalf("LastCursor = %q, %v; want \"c1\", nil", got, err)
	}

	// Re-upserting the same cursor is idempotent, not a constraint error.
	if err := s.UpsertActivity(ctx, ev); err != nil {
		t.Fatalf("UpsertActivity (duplicate): %v", err)
	}
	if err := s.SaveCursor(ctx, "c2"); err != nil {
		t.Fatalf("SaveCursor (advance): %v", err)
	}
	if got, err := s.LastCursor(ctx); err != nil || got != "c2" {
		t.Fatalf("LastCursor after advance = %q, %v; want \"c2\", nil", got, err)
	}
}
