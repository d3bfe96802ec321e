package norm

import (
	"context"

	"github.com/wardenhq/warden/backend/internal/msgbus"
)

// Normalizer is the per-agent-family log normalizer contract. Implementations
// subscribe to a MsgStore's raw stdout, parse agent-specific JSONL/plaintext
// into the canonical Entry model, and emit JsonPatch messages back into the
// same store. Normalize runs until ctx is cancelled or the store finishes.
type Normalizer interface {
	Normalize(ctx context.Context, store *msgbus.MsgStore, worktreePath string)
}

// RunStderrNormalizer subscribes to store's stderr stream and emits each
// complete line as an ErrorMessage entry, sharing conv's index provider so
// indices stay globally monotonic alongside the stdout normalizer.
func RunStderrNormalizer(ctx context.Context, store *msgbus.MsgStore, conv *Conversation) {
	live, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	var framer Framer
	for m := range live {
		if m.Kind == msgbus.KindFinished {
			if line, ok := framer.Flush(); ok {
				conv.AddEntry(ErrorMessage(line))
			}
			return
		}
		if m.Kind != msgbus.KindStderr {
			continue
		}
		for _, line := range framer.Feed(m.Text) {
			conv.AddEntry(ErrorMessage(line))
		}
	}
}

// Plaintext is the fallback normalizer for agents with no structured wire
// format: every stdout line becomes a SystemMessage, which still exercises
// the shared line-framing/truncation machinery.
type Plaintext struct{}

// Normalize implements Normalizer.
func (Plaintext) Normalize(ctx context.Context, store *msgbus.MsgStore, worktreePath string) {
	conv := NewConversation(store)
	live, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	var framer Framer
	for m := range live {
		if m.Kind == msgbus.KindFinished {
			if line, ok := framer.Flush(); ok {
				conv.AddEntry(SystemMessage(line))
			}
			return
		}
		if m.Kind != msgbus.KindStdout {
			continue
		}
		for _, line := range framer.Feed(m.Text) {
			conv.AddEntry(SystemMessage(line))
		}
	}
	if line, ok := framer.Flush(); ok {
		conv.AddEntry(SystemMessage(line))
	}
}
