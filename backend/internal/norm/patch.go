package norm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PatchOp is an RFC-6902 JSON-Patch operation, restricted to the two ops
// the conversation model ever emits: a new entry is always an Add (the
// array only ever grows), and an in-place tool-result update is always a
// Replace.
type PatchOp string

const (
	OpAdd     PatchOp = "add"
	OpReplace PatchOp = "replace"
)

// PatchValueKind tags what a patch's value carries, mirroring the
// `#[serde(tag = "type", content = "content")]` wire shape of the source
// patch envelope.
type PatchValueKind string

const (
	ValueNormalizedEntry PatchValueKind = "NORMALIZED_ENTRY"
	ValueStdout          PatchValueKind = "STDOUT"
	ValueStderr          PatchValueKind = "STDERR"
)

// PatchValue is the tagged payload of a single patch operation.
type PatchValue struct {
	Type    PatchValueKind  `json:"type"`
	Content json.RawMessage `json:"content"`
}

// PatchOperation is one element of a JSON-Patch document.
type PatchOperation struct {
	Op    PatchOp    `json:"op"`
	Path  string     `json:"path"`
	Value PatchValue `json:"value"`
}

// EscapePointer escapes a single RFC-6901 JSON-Pointer reference-token:
// '~' becomes '~0' and '/' becomes '~1'. Entity ids used as pointer
// segments (e.g. task/attempt ids in EventBus paths) must pass through
// this, or addressing silently corrupts for any id containing either
// character.
func EscapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

// entriesPath builds the "/entries/{idx}" pointer for a conversation index.
func entriesPath(idx int) string {
	return "/entries/" + strconv.Itoa(idx)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Every caller marshals a value built entirely of this package's own
		// types, which are always representable as JSON.
		panic(fmt.Sprintf("norm: marshal patch value: %v", err))
	}
	return b
}

// AddEntryPatch builds an ADD patch for a newly-allocated entry index.
func AddEntryPatch(idx int, entry Entry) []PatchOperation {
	return []PatchOperation{{
		Op:   OpAdd,
		Path: entriesPath(idx),
		Value: PatchValue{
			Type:    ValueNormalizedEntry,
			Content: mustMarshal(entry),
		},
	}}
}

// ReplaceEntryPatch builds a REPLACE patch for an existing entry index,
// used when a ToolUse entry's result arrives (Created -> Success|Failed).
func ReplaceEntryPatch(idx int, entry Entry) []PatchOperation {
	return []PatchOperation{{
		Op:   OpReplace,
		Path: entriesPath(idx),
		Value: PatchValue{
			Type:    ValueNormalizedEntry,
			Content: mustMarshal(entry),
		},
	}}
}

// AddStdoutPatch builds an ADD patch carrying a raw stdout string rather
// than a normalized entry; it is the patch Conversation.AddStdout emits.
func AddStdoutPatch(idx int, text string) []PatchOperation {
	return []PatchOperation{{
		Op:   OpAdd,
		Path: entriesPath(idx),
		Value: PatchValue{
			Type:    ValueStdout,
			Content: mustMarshal(text),
		},
	}}
}

// AddStderrPatch builds an ADD patch carrying a raw stderr string.
func AddStderrPatch(idx int, text string) []PatchOperation {
	return []PatchOperation{{
		Op:   OpAdd,
		Path: entriesPath(idx),
		Value: PatchValue{
			Type:    ValueStderr,
			Content: mustMarshal(text),
		},
	}}
}

// MarshalPatch encodes a patch document for transport over msgbus.PushPatch.
func MarshalPatch(ops []PatchOperation) ([]byte, error) {
	b, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("norm: marshal patch: %w", err)
	}
	return b, nil
}
