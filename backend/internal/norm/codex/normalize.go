package codex

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wardenhq/warden/backend/internal/msgbus"
	"github.com/wardenhq/warden/backend/internal/norm"
)

// Normalizer implements norm.Normalizer for Codex CLI's "exec --json"
// session records: item.started/item.updated/item.completed events are
// correlated by item id through the shared Conversation tool-call map, the
// same AddToolCall/UpdateToolCall lifecycle Claude Code's tool_use/
// tool_result pairs use.
type Normalizer struct{}

// Normalize consumes store's stdout stream as a sequence of Codex Records
// and emits the corresponding NormalizedEntry patches.
func (Normalizer) Normalize(ctx context.Context, store *msgbus.MsgStore, worktreePath string) {
	conv := norm.NewConversation(store)
	live, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	var framer norm.Framer
	process := func(line string) {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			conv.AddEntry(norm.SystemMessage(line))
			return
		}
		handleRecord(conv, &rec)
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

// handleRecord feeds one parsed Record into conv, per the outer envelope's
// Type discriminator.
func handleRecord(conv *norm.Conversation, rec *Record) {
	switch rec.Type {
	case TypeThreadStarted:
		ts, err := rec.AsThreadStarted()
		if err != nil {
			slog.Warn("codex: malformed thread.started", "error", err)
			return
		}
		conv.AddEntry(norm.SystemMessage("thread: " + ts.ThreadID))
	case TypeTurnFailed:
		tf, err := rec.AsTurnFailed()
		if err != nil {
			slog.Warn("codex: malformed turn.failed", "error", err)
			return
		}
		conv.AddEntry(norm.ErrorMessage(tf.Error))
	case TypeTurnCompleted:
		// Token usage carried by turn.completed is not recorded: no
		// conversation entry is emitted and nothing else stores it.
	case TypeItemStarted:
		item, err := rec.AsItem()
		if err != nil {
			slog.Warn("codex: malformed item.started", "error", err)
			return
		}
		handleItemStarted(conv, item.Item)
	case TypeItemUpdated:
		// Intermediate progress on an already-created item; the canonical
		// model has no partial-update slot, so updates are dropped until
		// item.completed arrives.
	case TypeItemCompleted:
		item, err := rec.AsItem()
		if err != nil {
			slog.Warn("codex: malformed item.completed", "error", err)
			return
		}
		handleItemCompleted(conv, item.Item)
	case TypeError:
		conv.AddEntry(norm.ErrorMessage(string(rec.Raw())))
	default:
		slog.Warn("codex: unknown record type", "type", rec.Type)
	}
}

// handleItemStarted creates the ToolUse entry (Created) for item kinds
// that represent a tool call. Item kinds that are themselves the final
// content (agent_message, reasoning) emit nothing here; they are handled
// at item.completed.
func handleItemStarted(conv *norm.Conversation, item ItemData) {
	switch item.Type {
	case ItemTypeAgentMessage:
		// Deferred to item.completed, where the full text is available.
	case ItemTypeReasoning:
		// Deferred to item.completed, same reason.
	case ItemTypeCommandExecution, ItemTypeFileChange, ItemTypeMCPToolCall, ItemTypeWebSearch:
		conv.AddToolCall(item.ID, norm.ToolUse(item.Type, actionTypeFor(item), ""))
	case ItemTypeTodoList:
		conv.AddEntry(norm.SystemMessage(todoListContent(item)))
	case ItemTypeError:
		conv.AddEntry(norm.ErrorMessage(item.Message))
	default:
		slog.Warn("codex: unknown item type in item.started", "type", item.Type)
	}
}

// handleItemCompleted applies the terminal state of item: for tool-call
// items, this replaces the Created entry from item.started; for
// agent_message/reasoning it is the only entry ever emitted for that item.
func handleItemCompleted(conv *norm.Conversation, item ItemData) {
	switch item.Type {
	case ItemTypeAgentMessage:
		conv.AddEntry(norm.AssistantMessage(item.Text))
	case ItemTypeReasoning:
		conv.AddEntry(norm.Thinking(item.Text))
	case ItemTypeCommandExecution, ItemTypeFileChange, ItemTypeMCPToolCall, ItemTypeWebSearch:
		status := norm.ToolSuccess
		if item.Status == "failed" {
			status = norm.ToolFailed
		}
		action := actionTypeFor(item)
		_, applied := conv.UpdateToolCall(item.ID, norm.Entry{
			Kind:       norm.KindToolUse,
			ToolName:   item.Type,
			Status:     status,
			ActionType: &action,
		})
		if !applied {
			// item.started for this id was never observed (truncated log,
			// or out-of-order delivery); surface it as a standalone entry
			// rather than silently dropping the result.
			conv.AddEntry(norm.Entry{
				Kind:       norm.KindToolUse,
				ToolName:   item.Type,
				Status:     status,
				ActionType: &action,
			})
		}
	case ItemTypeTodoList:
		conv.AddEntry(norm.SystemMessage(todoListContent(item)))
	case ItemTypeError:
		conv.AddEntry(norm.ErrorMessage(item.Message))
	}
}

// actionTypeFor maps an ItemData's kind-specific fields onto the canonical
// ActionType tagged union.
func actionTypeFor(item ItemData) norm.ActionType {
	switch item.Type {
	case ItemTypeCommandExecution:
		var result *norm.CommandRunResult
		if item.ExitCode != nil {
			result = &norm.CommandRunResult{ExitStatus: *item.ExitCode, Output: item.AggregatedOutput}
		}
		return norm.ActionType{Kind: norm.ActionCommandRun, Command: item.Command, Result: result}
	case ItemTypeFileChange:
		path := ""
		if len(item.Changes) > 0 {
			path = item.Changes[0].Path
		}
		return norm.ActionType{Kind: norm.ActionFileEdit, Path: path}
	case ItemTypeMCPToolCall:
		desc := item.Server + "." + item.Tool
		if item.Error != "" {
			return norm.ActionType{Kind: norm.ActionOther, Description: desc + ": " + item.Error}
		}
		return norm.ActionType{Kind: norm.ActionOther, Description: desc}
	case ItemTypeWebSearch:
		return norm.ActionType{Kind: norm.ActionSearch, Query: item.Query}
	default:
		return norm.ActionType{Kind: norm.ActionOther, Description: item.Type}
	}
}

// todoListContent renders a todo_list item as a readable plain-text block.
func todoListContent(item ItemData) string {
	out := "todo:"
	for _, it := range item.Items {
		mark := " "
		if it.Completed {
			mark = "x"
		}
		out += "\n[" + mark + "] " + it.Text
	}
	return out
}
