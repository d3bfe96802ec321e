package norm

import (
	"log/slog"
	"sync"

	"github.com/wardenhq/warden/backend/internal/msgbus"
)

// Conversation owns the shared, per-execution normalization state: the
// monotonic entry index and the tool_call_id -> entry index correlation
// map. It is shared between an agent's stdout normalizer and its stderr
// normalizer so that indices stay globally monotonic across both streams.
type Conversation struct {
	store *msgbus.MsgStore

	mu     sync.Mutex
	next   int
	byTool map[string]int
}

// NewConversation creates a Conversation that emits patches into store.
func NewConversation(store *msgbus.MsgStore) *Conversation {
	return &Conversation{store: store, byTool: make(map[string]int)}
}

// AddEntry allocates the next index, emits an ADD patch, and returns the
// index assigned (useful for entries a caller may later want to reference
// directly, though ToolUse entries should use AddToolCall instead).
func (c *Conversation) AddEntry(entry Entry) int {
	c.mu.Lock()
	idx := c.next
	c.next++
	c.mu.Unlock()

	c.emit(AddEntryPatch(idx, entry))
	return idx
}

// AddToolCall allocates the next index for a ToolUse entry and remembers
// toolCallID -> idx so a later UpdateToolCall can find it. A duplicate
// AddToolCall for the same id overwrites the previous mapping and logs a
// warning, per the documented (if surprising) source behavior: the prior
// entry's index becomes unreachable for updates.
func (c *Conversation) AddToolCall(toolCallID string, entry Entry) int {
	c.mu.Lock()
	idx := c.next
	c.next++
	if _, exists := c.byTool[toolCallID]; exists {
		slog.Warn("tool_call_id re-seen in AddToolCall, overwriting mapping", "tool_call_id", toolCallID)
	}
	c.byTool[toolCallID] = idx
	c.mu.Unlock()

	c.emit(AddEntryPatch(idx, entry))
	return idx
}

// UpdateToolCall looks up toolCallID's entry index and, if found, emits a
// REPLACE patch and removes the mapping (a ToolUse transitions Created ->
// Success|Failed at most once). If no AddToolCall was seen for this id
// (an out-of-order tool result arriving before its call), the update is
// dropped with a warning and no patch is emitted.
func (c *Conversation) UpdateToolCall(toolCallID string, entry Entry) (idx int, applied bool) {
	c.mu.Lock()
	idx, ok := c.byTool[toolCallID]
	if ok {
		delete(c.byTool, toolCallID)
	}
	c.mu.Unlock()

	if !ok {
		slog.Warn("tool_result for unknown tool_call_id, dropping", "tool_call_id", toolCallID)
		return 0, false
	}
	c.emit(ReplaceEntryPatch(idx, entry))
	return idx, true
}

// AddStdout allocates the next index and emits a raw-stdout ADD patch.
// No normalizer in this module calls it; the plaintext fallback emits
// SystemMessage entries instead.
func (c *Conversation) AddStdout(text string) int {
	c.mu.Lock()
	idx := c.next
	c.next++
	c.mu.Unlock()

	c.emit(AddStdoutPatch(idx, text))
	return idx
}

func (c *Conversation) emit(ops []PatchOperation) {
	b, err := MarshalPatch(ops)
	if err != nil {
		slog.Error("failed to marshal conversation patch", "error", err)
		return
	}
	c.store.PushPatch(b)
}
