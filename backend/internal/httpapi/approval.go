// Approval-decision endpoint: POST /api/v1/approvals/{id}/decision resolves
// a pending approval.Request that an agent's tool call is blocked on.
package httpapi

import (
	"net/http"

	"github.com/wardenhq/warden/backend/internal/approval"
)

type decisionReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (r *decisionReq) Validate() error {
	switch approval.Status(r.Status) {
	case approval.StatusApproved, approval.StatusDenied:
		return nil
	default:
		return badRequest("status must be \"approved\" or \"denied\"")
	}
}

func (s *Server) handleApprovalDecision(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, badRequest("approval id is required"))
		return
	}

	in := new(decisionReq)
	if !readAndDecodeBody(w, r, in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := s.approvals.Respond(id, approval.Decision{Status: approval.Status(in.Status), Reason: in.Reason}); err != nil {
		writeError(w, conflict(err.Error()))
		return
	}
	writeJSONResponse(w, &statusResp{Status: "ok"}, nil)
}

type statusResp struct {
	Status string `json:"status"`
}
