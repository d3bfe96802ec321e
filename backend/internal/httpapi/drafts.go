// Draft endpoint: POST /api/v1/task-attempts/{id}/drafts/{kind} queues a
// follow-up or retry prompt for a TaskAttempt, for the workflow driver's
// background poller to send once the attempt is idle.
package httpapi

import (
	"net/http"

	"github.com/wardenhq/warden/backend/internal/workflow"
)

type draftReq struct {
	Prompt   string   `json:"prompt"`
	ImageIDs []string `json:"image_ids"`
	Variant  string   `json:"variant"`
}

func (r *draftReq) Validate() error {
	if r.Prompt == "" {
		return badRequest("prompt is required")
	}
	return nil
}

func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")
	kind := workflow.DraftKind(r.PathValue("kind"))
	if attemptID == "" {
		writeError(w, badRequest("task attempt id is required"))
		return
	}
	switch kind {
	case workflow.DraftFollowUp, workflow.DraftRetry:
	default:
		writeError(w, badRequest("kind must be \"follow-up\" or \"retry\""))
		return
	}

	in := new(draftReq)
	if !readAndDecodeBody(w, r, in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := s.drafts.SetDraftPrompt(r.Context(), attemptID, kind, in.Prompt, in.ImageIDs, in.Variant); err != nil {
		writeError(w, conflict(err.Error()))
		return
	}
	writeJSONResponse(w, &statusResp{Status: "ok"}, nil)
}
