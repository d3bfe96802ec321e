// Package norm implements the canonical conversation model shared by every
// agent-specific log normalizer: NormalizedEntry/ActionType, the
// tool-call correlation state machine, and RFC-6902 patch emission against
// a per-execution, monotonically growing /entries array.
package norm

// ToolStatus is the lifecycle state of a ToolUse entry. An entry starts
// Created and transitions to Success or Failed exactly once, when its
// result arrives.
type ToolStatus string

const (
	ToolCreated ToolStatus = "created"
	ToolSuccess ToolStatus = "success"
	ToolFailed  ToolStatus = "failed"
)

// EntryKind discriminates the variant carried by an Entry.
type EntryKind string

const (
	KindUserMessage      EntryKind = "user_message"
	KindAssistantMessage EntryKind = "assistant_message"
	KindSystemMessage    EntryKind = "system_message"
	KindErrorMessage     EntryKind = "error_message"
	KindThinking         EntryKind = "thinking"
	KindToolUse          EntryKind = "tool_use"
)

// ActionKind discriminates the tagged union carried by a ToolUse entry's
// ActionType.
type ActionKind string

const (
	ActionFileRead         ActionKind = "file_read"
	ActionFileWrite        ActionKind = "file_write"
	ActionFileEdit         ActionKind = "file_edit"
	ActionCommandRun       ActionKind = "command_run"
	ActionSearch           ActionKind = "search"
	ActionWebFetch         ActionKind = "web_fetch"
	ActionTaskCreate       ActionKind = "task_create"
	ActionPlanPresentation ActionKind = "plan_presentation"
	ActionOther            ActionKind = "other"
)

// CommandRunResult fills in once a CommandRun tool-use's terminal status
// line (e.g. "[Process exited with code 0]") has been observed.
type CommandRunResult struct {
	ExitStatus int    `json:"exit_status"`
	Output     string `json:"output"`
}

// ActionType is the tagged union of concrete tool actions a ToolUse entry
// can represent. Exactly one of the *-specific fields is meaningful,
// selected by Kind; this mirrors the wire shape of the original
// `#[serde(tag = "action")]` Rust enum without needing Go's lack of sum
// types to leak into the JSON representation.
type ActionType struct {
	Kind ActionKind `json:"action"`

	Path        string            `json:"path,omitempty"`
	Command     string            `json:"command,omitempty"`
	Result      *CommandRunResult `json:"result,omitempty"`
	Query       string            `json:"query,omitempty"`
	URL         string            `json:"url,omitempty"`
	Description string            `json:"description,omitempty"`
	Plan        string            `json:"plan,omitempty"`
}

// Entry is one canonical conversation item.
type Entry struct {
	Timestamp string    `json:"timestamp,omitempty"`
	Kind      EntryKind `json:"type"`
	Content   string    `json:"content"`

	// ToolName and ActionType and Status are only meaningful when
	// Kind == KindToolUse.
	ToolName   string      `json:"tool_name,omitempty"`
	ActionType *ActionType `json:"action_type,omitempty"`
	Status     ToolStatus  `json:"status,omitempty"`

	// Metadata carries any agent-specific extra data that doesn't fit the
	// canonical shape; never interpreted by shared code, only passed
	// through for debugging/telemetry.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UserMessage builds a plain UserMessage entry.
func UserMessage(content string) Entry {
	return Entry{Kind: KindUserMessage, Content: content}
}

// AssistantMessage builds a plain AssistantMessage entry.
func AssistantMessage(content string) Entry {
	return Entry{Kind: KindAssistantMessage, Content: content}
}

// SystemMessage builds a plain SystemMessage entry.
func SystemMessage(content string) Entry {
	return Entry{Kind: KindSystemMessage, Content: content}
}

// ErrorMessage builds a plain ErrorMessage entry.
func ErrorMessage(content string) Entry {
	return Entry{Kind: KindErrorMessage, Content: content}
}

// Thinking builds a plain Thinking entry.
func Thinking(content string) Entry {
	return Entry{Kind: KindThinking, Content: content}
}

// ToolUse builds a ToolUse entry in the Created state.
func ToolUse(toolName string, action ActionType, content string) Entry {
	return Entry{
		Kind:       KindToolUse,
		Content:    content,
		ToolName:   toolName,
		ActionType: &action,
		Status:     ToolCreated,
	}
}
