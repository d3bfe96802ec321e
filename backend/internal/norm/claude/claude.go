// Package claude normalizes Claude Code's stdout JSONL stream into the
// shared norm.Conversation model. Each line is one event; new fields may
// appear at any version, so every event type preserves unknown fields in
// an Overflow map and logs a warning when they are encountered, matching
// the forward-compatibility idiom Claude Code's own session-log reader
// uses.
package claude

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"

	"github.com/wardenhq/warden/backend/internal/msgbus"
	"github.com/wardenhq/warden/backend/internal/norm"
)

// EventType discriminates the "type" field of a Claude Code stream-json line.
type EventType string

const (
	EventSystem     EventType = "system"
	EventAssistant  EventType = "assistant"
	EventUser       EventType = "user"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
)

// Overflow holds JSON fields that were not mapped to a struct field, so
// unrecognized additions to the wire format never silently drop data.
type Overflow struct {
	Extra map[string]json.RawMessage `json:"-"`
}

func warnUnknown(context string, extra map[string]json.RawMessage) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slog.Warn("unknown fields in claude-code event", "context", context, "fields", keys)
}

// Event is one parsed line of the stream-json protocol. Only the fields
// relevant to normalization are decoded into named fields; everything else
// lands in Overflow.
type Event struct {
	Type EventType `json:"type"`

	// system
	Model   string `json:"model,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	// assistant / user
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	Overflow
}

// UnmarshalJSON decodes e and stashes any fields not recognized above into
// Overflow.Extra.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]struct{}{
		"type": {}, "model": {}, "subtype": {}, "text": {}, "id": {}, "name": {},
		"input": {}, "tool_use_id": {}, "content": {},
	}
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = v
		}
	}
	e.Extra = extra
	return nil
}

// Normalizer implements norm.Normalizer for Claude Code's stream-json
// stdout protocol.
type Normalizer struct{}

// Normalize consumes store's stdout stream, parses each line as an Event,
// and emits the corresponding NormalizedEntry patches, correlating
// tool_use/tool_result pairs by id via the shared Conversation state
// machine.
func (Normalizer) Normalize(ctx context.Context, store *msgbus.MsgStore, worktreePath string) {
	conv := norm.NewConversation(store)
	live, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	var framer norm.Framer
	process := func(line string) {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			conv.AddEntry(norm.SystemMessage(line))
			return
		}
		warnUnknown(string(ev.Type), ev.Extra)
		handleEvent(conv, ev)
	}

	for m := range live {
		if m.Kind == msgbus.KindFinished {
			if rest, ok := framer.Flush(); ok {
				process(rest)
			}
			return
		}
		if m.Kind != msgbus.KindStdout {
			continue
		}
		for _, line := range framer.Feed(m.Text) {
			process(line)
		}
	}
	if rest, ok := framer.Flush(); ok {
		process(rest)
	}
}

// handleEvent feeds one parsed Event into conv's AddEntry/AddToolCall/
// UpdateToolCall state machine.
func handleEvent(conv *norm.Conversation, ev Event) {
	switch ev.Type {
	case EventSystem:
		conv.AddEntry(norm.SystemMessage("model: " + ev.Model))
	case EventAssistant:
		conv.AddEntry(norm.AssistantMessage(ev.Text))
	case EventUser:
		conv.AddEntry(norm.UserMessage(ev.Text))
	case EventToolUse:
		action := inferActionType(ev.Name, ev.Input)
		conv.AddToolCall(ev.ID, norm.ToolUse(ev.Name, action, ""))
	case EventToolResult:
		status := norm.ToolSuccess
		if exitCode, ok := parseExitCode(ev.Content); ok && exitCode != 0 {
			status = norm.ToolFailed
		}
		conv.UpdateToolCall(ev.ToolUseID, norm.Entry{
			Kind:   norm.KindToolUse,
			Status: status,
			ActionType: &norm.ActionType{
				Kind:   norm.ActionCommandRun,
				Result: &norm.CommandRunResult{Output: ev.Content},
			},
		})
	default:
		slog.Warn("unknown claude-code event type", "type", ev.Type)
	}
}

// inferActionType maps a Claude Code tool name to the canonical ActionType,
// mirroring the tool -> action mapping every LogNormalizer variant defines.
func inferActionType(name string, input json.RawMessage) norm.ActionType {
	switch name {
	case "Bash":
		var args struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionCommandRun, Command: args.Command}
	case "Read":
		var args struct {
			FilePath string `json:"file_path"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionFileRead, Path: args.FilePath}
	case "Write":
		var args struct {
			FilePath string `json:"file_path"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionFileWrite, Path: args.FilePath}
	case "Edit":
		var args struct {
			FilePath string `json:"file_path"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionFileEdit, Path: args.FilePath}
	case "Grep", "Glob":
		var args struct {
			Pattern string `json:"pattern"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionSearch, Query: args.Pattern}
	case "WebFetch":
		var args struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(input, &args)
		return norm.ActionType{Kind: norm.ActionWebFetch, URL: args.URL}
	default:
		return norm.ActionType{Kind: norm.ActionOther, Description: name}
	}
}

// parseExitCode extracts the code from a "[Process exited with code N]"
// terminal status line, as emitted after a Bash tool_result.
func parseExitCode(content string) (int, bool) {
	const prefix = "[Process exited with code "
	const suffix = "]"
	if len(content) < len(prefix)+len(suffix) {
		return 0, false
	}
	if content[:len(prefix)] != prefix || content[len(content)-len(suffix):] != suffix {
		return 0, false
	}
	digits := content[len(prefix) : len(content)-len(suffix)]
	code, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return code, true
}
