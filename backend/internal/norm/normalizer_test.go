package norm

import (
	"context"
	"testing"
	"time"

	"github.com/wardenhq/warden/backend/internal/msgbus"
)

func TestPlaintextNormalizerEmitsSystemMessagePerLine(t *testing.T) {
	store := msgbus.New()
	store.PushStdout("hello\nworld\n")
	store.PushFinished()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	Plaintext{}.Normalize(ctx, store, "/tmp/worktree")

	replay := &ReplayedConversation{}
	for _, m := range store.History() {
		if m.Kind == msgbus.KindJSONPatch {
			if err := replay.Apply(m.Patch); err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}
	}
	if len(replay.Entries) != 2 {
		t.Fatalf("expected 2 system-message entries, got %d", len(replay.Entries))
	}
}

func TestStderrNormalizerEmitsErrorMessages(t *testing.T) {
	store := msgbus.New()
	conv := NewConversation(store)
	store.PushStderr("boom\n")
	store.PushFinished()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	RunStderrNormalizer(ctx, store, conv)

	replay := &ReplayedConversation{}
	for _, m := range store.History() {
		if m.Kind == msgbus.KindJSONPatch {
			if err := replay.Apply(m.Patch); err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}
	}
	if len(replay.Entries) != 1 {
		t.Fatalf("expected 1 error-message entry, got %d", len(replay.Entries))
	}
}
