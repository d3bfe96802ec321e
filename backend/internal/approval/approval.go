// Package approval implements the human-in-the-loop rendezvous between a
// tool use an agent wants to perform and the decider (a human, or an
// auto-approve policy) who allows or denies it.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status is the final or in-flight state of an ApprovalRequest. Pending is
// never a final state: every request eventually resolves to Approved,
// Denied, or TimedOut.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimedOut Status = "timed-out"
)

// ExitPlanModeTool is the special tool name whose approval, once granted,
// triggers the orchestrator to synthesize a follow-up execution with
// relaxed permissions rather than simply letting the agent proceed.
const ExitPlanModeTool = "ExitPlanMode"

// Request is one per-tool-call decision record.
type Request struct {
	ID                 string
	ExecutionProcessID string
	ToolName           string
	ToolInput          json.RawMessage
	ToolCallID         string
	Status             Status
	Reason             string
	CreatedAt          time.Time
}

// Decision is what a decider supplies to Respond.
type Decision struct {
	Status Status
	Reason string
}

// Bridge registers pending approval requests and rendezvous deciders with
// the goroutine awaiting the outcome, the way a oneshot channel does.
type Bridge struct {
	mu       sync.Mutex
	waiters  map[string]chan Decision
	requests map[string]*Request

	// onCreated, if set, is invoked to move the owning Task to in-review as
	// soon as a request is created (step 2 of the algorithm). Left nil in
	// tests that don't need it wired to a Store.
	onCreated func(req *Request)

	// onResolved, if set, is invoked with the final state of a Request
	// once it resolves (approved, denied, or timed out), so the decision
	// can be journaled. Set after construction via SetOnResolved since the
	// Store a caller wants to wire it to is typically built after the
	// Bridge.
	onResolved func(req *Request)
}

// New creates an empty Bridge. onCreated, if non-nil, is called
// synchronously every time a new Request is registered.
func New(onCreated func(req *Request)) *Bridge {
	return &Bridge{
		waiters:   make(map[string]chan Decision),
		requests:  make(map[string]*Request),
		onCreated: onCreated,
	}
}

// SetOnResolved wires the callback invoked once a Request reaches a final
// status. Safe to call once, before the Bridge is handed off to concurrent
// callers.
func (b *Bridge) SetOnResolved(onResolved func(req *Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResolved = onResolved
}

// RequestApproval creates a pending Request and returns a function that
// blocks until a decider calls Respond, or ctx is done (its deadline or
// cancellation), in which case the request resolves to TimedOut.
func (b *Bridge) RequestApproval(ctx context.Context, id string, req Request) (wait func() (Status, string, error)) {
	req.ID = id
	req.Status = StatusPending
	waiter := make(chan Decision, 1)

	b.mu.Lock()
	b.requests[id] = &req
	b.waiters[id] = waiter
	b.mu.Unlock()

	if b.onCreated != nil {
		b.onCreated(&req)
	}

	return func() (Status, string, error) {
		select {
		case d := <-waiter:
			b.mu.Lock()
			r, ok := b.requests[id]
			if ok {
				r.Status = d.Status
				r.Reason = d.Reason
			}
			onResolved := b.onResolved
			b.mu.Unlock()
			if ok && onResolved != nil {
				onResolved(r)
			}
			return d.Status, d.Reason, nil
		case <-ctx.Done():
			b.mu.Lock()
			delete(b.waiters, id)
			r, ok := b.requests[id]
			if ok {
				r.Status = StatusTimedOut
			}
			onResolved := b.onResolved
			b.mu.Unlock()
			if ok && onResolved != nil {
				onResolved(r)
			}
			return StatusTimedOut, "", ctx.Err()
		}
	}
}

// Respond resolves a pending approval. Returns an error if id is not a
// known, still-pending request (already resolved, timed out, or never
// registered).
func (b *Bridge) Respond(id string, decision Decision) error {
	b.mu.Lock()
	waiter, ok := b.waiters[id]
	if ok {
		delete(b.waiters, id)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("approval: %s: %w", id, errNoPendingWaiter)
	}
	waiter <- decision
	return nil
}

var errNoPendingWaiter = fmt.Errorf("no pending waiter (already resolved or unknown)")

// Get returns the current state of a request, for inspection/audit.
func (b *Bridge) Get(id string) (*Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.requests[id]
	return r, ok
}

// FallbackPolicy decides what happens when the bridge itself is
// unavailable (e.g. no decider process attached): either auto-approve, or
// deny with a fixed reason.
type FallbackPolicy struct {
	AutoApprove bool
}

// Decide applies the fallback policy directly, without creating a Request.
func (p FallbackPolicy) Decide() (Status, string) {
	if p.AutoApprove {
		return StatusApproved, ""
	}
	return StatusDenied, "service unavailable"
}
