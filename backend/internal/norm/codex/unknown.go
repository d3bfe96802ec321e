// Package codex provides Go types for Codex CLI "exec --json" session
// records, and a LogNormalizer variant that maps their item lifecycle onto
// the shared canonical conversation model. New fields may appear at any
// version, so all record types preserve unknown fields in an Overflow map
// and log a warning when they are encountered.
package codex

import (
	"encoding/json"
	"log/slog"
	"sort"
)

// Overflow holds JSON fields that were not mapped to a struct field.
// It is embedded in every record type to ensure forward compatibility.
type Overflow struct {
	Extra map[string]json.RawMessage `json:"-"`
}

// warnUnknown logs a warning for each key in extra, identified by context.
func warnUnknown(context string, extra map[string]json.RawMessage) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slog.Warn("unknown fields in codex record", "context", context, "fields", keys)
}
