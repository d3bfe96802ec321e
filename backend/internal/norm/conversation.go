package norm

import (
	"encoding/json"
	"fmt"
)

// ReplayedConversation is the result of applying a sequence of emitted
// json_patch documents to an initially-empty {entries: []}. It exists so
// tests (and any durable mirror of the live conversation) can verify that
// replaying patches reproduces the in-core conversation exactly.
type ReplayedConversation struct {
	Entries []json.RawMessage
}

// Apply applies one marshaled patch document (as produced by MarshalPatch)
// to the conversation, growing or replacing Entries in place.
func (rc *ReplayedConversation) Apply(patch []byte) error {
	var ops []PatchOperation
	if err := json.Unmarshal(patch, &ops); err != nil {
		return fmt.Errorf("norm: unmarshal patch: %w", err)
	}
	for _, op := range ops {
		idx, err := pointerIndex(op.Path)
		if err != nil {
			return err
		}
		switch op.Op {
		case OpAdd:
			if idx != len(rc.Entries) {
				return fmt.Errorf("norm: add at %d but conversation has %d entries", idx, len(rc.Entries))
			}
			rc.Entries = append(rc.Entries, op.Value.Content)
		case OpReplace:
			if idx < 0 || idx >= len(rc.Entries) {
				return fmt.Errorf("norm: replace at %d out of range (len %d)", idx, len(rc.Entries))
			}
			rc.Entries[idx] = op.Value.Content
		default:
			return fmt.Errorf("norm: unknown patch op %q", op.Op)
		}
	}
	return nil
}

// pointerIndex parses the literal "/entries/{idx}" shape this package ever
// emits back into an integer index.
func pointerIndex(path string) (int, error) {
	const prefix = "/entries/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return 0, fmt.Errorf("norm: unexpected patch path %q", path)
	}
	var idx int
	if _, err := fmt.Sscanf(path[len(prefix):], "%d", &idx); err != nil {
		return 0, fmt.Errorf("norm: parse index from %q: %w", path, err)
	}
	return idx, nil
}
