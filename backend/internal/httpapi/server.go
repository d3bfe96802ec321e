// Package httpapi is the daemon's thin external HTTP surface: the raw and
// normalized execution log streams, the approval-decision endpoint, and
// the local activity websocket, all wrapped in response compression. It
// deliberately does not implement the broader task/project CRUD route
// surface — that row-level editing is an external collaborator's concern,
// referenced only through the interfaces the store/workflow packages
// already expose.
package httpapi

import (
	"context"
	"net/http"

	"github.com/wardenhq/warden/backend/internal/approval"
	"github.com/wardenhq/warden/backend/internal/eventbus"
	"github.com/wardenhq/warden/backend/internal/exectracker"
	"github.com/wardenhq/warden/backend/internal/workflow"
)

// DraftSetter is the narrow surface the draft-prompt endpoint needs from
// task.Manager, kept here rather than importing the task package directly
// so httpapi's dependency graph stays leaf-ward.
type DraftSetter interface {
	SetDraftPrompt(ctx context.Context, attemptID string, kind workflow.DraftKind, prompt string, imageIDs []string, variant string) error
}

// Server holds the dependencies the HTTP surface needs to resolve a
// request: the execution registry for log streaming, the event bus for
// the activity feed, the approval bridge for tool-call decisions, and the
// draft setter for follow-up/retry prompts.
type Server struct {
	tracker   *exectracker.Tracker
	events    *eventbus.Bus
	approvals *approval.Bridge
	drafts    DraftSetter

	mux http.Handler
}

// New builds a Server and registers its routes.
func New(tracker *exectracker.Tracker, events *eventbus.Bus, approvals *approval.Bridge, drafts DraftSetter) *Server {
	s := &Server{tracker: tracker, events: events, approvals: approvals, drafts: drafts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/executions/{id}/raw", s.handleRawEvents)
	mux.HandleFunc("GET /api/v1/executions/{id}/normalized", s.handleNormalizedEvents)
	mux.HandleFunc("POST /api/v1/approvals/{id}/decision", s.handleApprovalDecision)
	mux.HandleFunc("POST /api/v1/task-attempts/{id}/drafts/{kind}", s.handleSetDraft)
	mux.HandleFunc("GET /api/v1/activity/ws", s.handleActivityWebsocket)

	s.mux = compressMiddleware(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
