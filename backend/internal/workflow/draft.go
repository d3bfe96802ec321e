package workflow

import (
	"strings"
	"sync"
)

// DraftKind distinguishes a follow-up prompt (sent while the attempt is
// between stations) from a retry (re-running the last failed station).
type DraftKind string

const (
	DraftFollowUp DraftKind = "follow-up"
	DraftRetry    DraftKind = "retry"
)

// Draft is the per-(attempt, kind) buffered follow-up input. Only one
// Draft exists per (attempt_id, kind); TryMarkSending is the single
// atomic gate that lets at most one caller win the race to send it.
type Draft struct {
	mu sync.Mutex

	AttemptID string
	Kind      DraftKind
	Prompt    string
	Queued    bool
	Sending   bool
	ImageIDs  []string
	Variant   string
	Version   int
}

// NewDraft creates an empty, unqueued draft.
func NewDraft(attemptID string, kind DraftKind) *Draft {
	return &Draft{AttemptID: attemptID, Kind: kind}
}

// Set stores a new prompt and marks the draft queued, ready to be sent.
func (d *Draft) Set(prompt string, imageIDs []string, variant string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Prompt = prompt
	d.ImageIDs = imageIDs
	d.Variant = variant
	d.Queued = true
}

// TryMarkSending atomically transitions a draft that is queued, not
// already sending, and has a non-blank prompt into sending=true. When two
// callers race this on the same Draft, exactly one observes true.
func (d *Draft) TryMarkSending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Queued || d.Sending || strings.TrimSpace(d.Prompt) == "" {
		return false
	}
	d.Sending = true
	d.Version++
	return true
}

// Snapshot returns a value copy of the draft's current fields, safe to
// read without racing concurrent mutators (the mutex itself cannot be
// copied out).
type DraftSnapshot struct {
	AttemptID string
	Kind      DraftKind
	Prompt    string
	Queued    bool
	Sending   bool
	ImageIDs  []string
	Variant   string
	Version   int
}

// Snapshot returns the current state of the draft.
func (d *Draft) Snapshot() DraftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DraftSnapshot{
		AttemptID: d.AttemptID,
		Kind:      d.Kind,
		Prompt:    d.Prompt,
		Queued:    d.Queued,
		Sending:   d.Sending,
		ImageIDs:  d.ImageIDs,
		Variant:   d.Variant,
		Version:   d.Version,
	}
}

// CompleteSend clears queued/sending/prompt/image_ids after a successful
// spawn, per the follow-up algorithm's step "on spawn success clears
// queued, sending, prompt, and image_ids".
func (d *Draft) CompleteSend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Queued = false
	d.Sending = false
	d.Prompt = ""
	d.ImageIDs = nil
}

// FailSend clears only sending, preserving the draft's prompt so the
// caller (or a future poll) can retry, per "on spawn failure it clears
// sending and preserves the draft".
func (d *Draft) FailSend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sending = false
}

// Restore seeds a freshly constructed Draft from a previously persisted
// snapshot, used when a process restart reloads drafts.Load'd state
// before PollDrafts resumes polling. A draft found mid-send is restored
// with sending cleared: a crash mid-send is indistinguishable from a
// failed send, so the next poll is free to retry it.
func (d *Draft) Restore(snap DraftSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Prompt = snap.Prompt
	d.Queued = snap.Queued
	d.Sending = false
	d.ImageIDs = snap.ImageIDs
	d.Variant = snap.Variant
	d.Version = snap.Version
}
