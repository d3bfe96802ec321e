// Raw and normalized Server-Sent Events streams over a tracked execution's
// MsgStore: /api/v1/executions/{id}/raw replays every message kind
// verbatim; /api/v1/executions/{id}/normalized filters down to the
// JSON-patch frames the log normalizer emits, so a UI subscriber can apply
// them to its own replayed conversation without re-deriving them from raw
// agent bytes.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wardenhq/warden/backend/internal/msgbus"
)

// sseMsg is the wire shape of one raw-stream SSE event's JSON data field.
type sseMsg struct {
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
	PatchB64  string `json:"patch,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleRawEvents(w http.ResponseWriter, r *http.Request) {
	store, apiErr := s.msgStoreForExecution(r.PathValue("id"))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		writeError(w, internalErrorf("streaming unsupported"))
		return
	}

	ctx := r.Context()
	ch, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	for m := range ch {
		data := sseMsg{Kind: m.Kind.Name()}
		switch m.Kind {
		case msgbus.KindStdout, msgbus.KindStderr:
			data.Text = m.Text
		case msgbus.KindSessionID:
			data.SessionID = m.Text
		case msgbus.KindJSONPatch:
			data.PatchB64 = base64.StdEncoding.EncodeToString(m.Patch)
		case msgbus.KindFinished:
		}
		if !writeSSEEvent(w, flusher, m.Kind.Name(), data) {
			return
		}
		if m.Kind == msgbus.KindFinished {
			return
		}
	}
}

func (s *Server) handleNormalizedEvents(w http.ResponseWriter, r *http.Request) {
	store, apiErr := s.msgStoreForExecution(r.PathValue("id"))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		writeError(w, internalErrorf("streaming unsupported"))
		return
	}

	ctx := r.Context()
	ch, cancel := store.HistoryPlusStream(ctx)
	defer cancel()

	for m := range ch {
		switch m.Kind {
		case msgbus.KindJSONPatch:
			if !writeSSERaw(w, flusher, "patch", m.Patch) {
				return
			}
		case msgbus.KindFinished:
			if !writeSSEEvent(w, flusher, "finished", struct{}{}) {
				return
			}
			return
		}
	}
}

// msgStoreForExecution resolves an execution id to its live MsgStore.
// Finished executions are not tracked once reaped, so streaming only
// applies to currently-running or just-finished-but-not-yet-reaped
// executions; historical replay of a fully reaped execution is an external
// collaborator's concern (SQL row storage, out of scope here).
func (s *Server) msgStoreForExecution(id string) (*msgbus.MsgStore, *apiError) {
	if id == "" {
		return nil, badRequest("execution id is required")
	}
	ex, ok := s.tracker.Get(id)
	if !ok {
		return nil, notFound("execution")
	}
	return ex.Store, nil
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) bool {
	b, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return writeSSERaw(w, flusher, event, b)
}

func writeSSERaw(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) bool {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func internalErrorf(format string, args ...any) *apiError {
	return &apiError{statusCode: http.StatusInternalServerError, code: codeInternalError, message: fmt.Sprintf(format, args...)}
}
