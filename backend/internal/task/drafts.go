package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardenhq/warden/backend/internal/agent"
	"github.com/wardenhq/warden/backend/internal/eventbus"
	"github.com/wardenhq/warden/backend/internal/workflow"
)

// DraftStore is the narrow persistence surface a Draft is journaled
// through, so a queued follow-up or retry survives a process restart.
type DraftStore interface {
	SaveDraft(ctx context.Context, snap workflow.DraftSnapshot) error
	LoadDraft(ctx context.Context, attemptID string, kind workflow.DraftKind) (workflow.DraftSnapshot, bool, error)
}

// SetDraftStore wires the journal drafts are persisted through. Left
// unset, drafts live only in memory for the life of the process (used by
// tests that don't need restart survival).
func (m *Manager) SetDraftStore(store DraftStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draftStore = store
}

// draftFor returns the Manager's in-memory Draft for (attemptID, kind),
// creating it and restoring any persisted state on first access.
func (m *Manager) draftFor(ctx context.Context, attemptID string, kind workflow.DraftKind) *workflow.Draft {
	m.mu.Lock()
	byKind, ok := m.drafts[attemptID]
	if !ok {
		byKind = make(map[workflow.DraftKind]*workflow.Draft)
		m.drafts[attemptID] = byKind
	}
	draft, ok := byKind[kind]
	draftStore := m.draftStore
	if !ok {
		draft = workflow.NewDraft(attemptID, kind)
		byKind[kind] = draft
	}
	m.mu.Unlock()
	if ok || draftStore == nil {
		return draft
	}
	if snap, found, err := draftStore.LoadDraft(ctx, attemptID, kind); err == nil && found {
		draft.Restore(snap)
	}
	return draft
}

// SetDraftPrompt queues prompt as the attempt's draft of the given kind,
// persisting it so a restart before it sends doesn't lose it, and
// publishing the eventbus patch a UI subscriber reconciles against.
func (m *Manager) SetDraftPrompt(ctx context.Context, attemptID string, kind workflow.DraftKind, prompt string, imageIDs []string, variant string) error {
	draft := m.draftFor(ctx, attemptID, kind)
	draft.Set(prompt, imageIDs, variant)
	snap := draft.Snapshot()

	m.mu.Lock()
	draftStore := m.draftStore
	m.mu.Unlock()
	if draftStore != nil {
		if err := draftStore.SaveDraft(ctx, snap); err != nil {
			return fmt.Errorf("task: save draft: %w", err)
		}
	}
	m.publishDraftPatch(kind, attemptID, snap)
	return nil
}

// PollAttemptDrafts attempts to send the follow-up and retry drafts for
// attemptID, skipping either when the attempt currently has a station
// running (a draft only ever resumes an idle attempt) or when the attempt
// has no prior station to resume against.
func (m *Manager) PollAttemptDrafts(ctx context.Context, attemptID string, driver *workflow.Driver) {
	info, ok := m.Attempt(attemptID)
	if !ok || driver.IsRunning(attemptID) {
		return
	}

	for _, kind := range []workflow.DraftKind{workflow.DraftFollowUp, workflow.DraftRetry} {
		draft := m.draftFor(ctx, attemptID, kind)
		send := func(ctx context.Context, snap workflow.DraftSnapshot) error {
			err := m.sendDraft(ctx, info, kind, snap)
			m.publishDraftPatch(kind, attemptID, draft.Snapshot())
			return err
		}
		if err := driver.PollDrafts(ctx, draft, send); err != nil {
			slog.Warn("task: poll draft", "attempt", attemptID, "kind", kind, "err", err)
		}
		m.persistDraft(ctx, draft)
	}
}

// sendDraft spawns the follow-up or retry action a successfully
// try_mark_sending'd draft describes, reusing runSpawnedSession so the
// send gets the same ExecutionProcess journaling and session-id capture
// as a fresh station spawn.
func (m *Manager) sendDraft(ctx context.Context, info *AttemptInfo, kind workflow.DraftKind, snap workflow.DraftSnapshot) error {
	station := info.LastStation
	if station.ID == "" {
		return fmt.Errorf("task: no prior station to resume for attempt %s", info.AttemptID)
	}

	backend, err := agent.ForHarness(agent.Harness(station.AgentID))
	if err != nil {
		return fmt.Errorf("task: resolve harness for draft %s: %w", kind, err)
	}

	var session agent.Session
	switch kind {
	case workflow.DraftFollowUp:
		session, err = backend.SpawnFollowUp(agent.Options{
			Prompt:       snap.Prompt,
			WorktreePath: info.WorktreeDir,
			SessionID:    info.SessionID,
		})
	case workflow.DraftRetry:
		session, err = backend.Spawn(agent.Options{
			Prompt:       station.StepPrompt,
			WorktreePath: info.WorktreeDir,
		})
	default:
		return fmt.Errorf("task: unknown draft kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("task: build command for draft %s: %w", kind, err)
	}

	return m.runSpawnedSession(ctx, info, station.ID, backend, session)
}

func (m *Manager) persistDraft(ctx context.Context, draft *workflow.Draft) {
	m.mu.Lock()
	draftStore := m.draftStore
	m.mu.Unlock()
	if draftStore == nil {
		return
	}
	if err := draftStore.SaveDraft(ctx, draft.Snapshot()); err != nil {
		slog.Warn("task: persist draft", "attempt", draft.AttemptID, "kind", draft.Kind, "err", err)
	}
}

func (m *Manager) publishDraftPatch(kind workflow.DraftKind, attemptID string, snap workflow.DraftSnapshot) {
	if m.bus == nil {
		return
	}
	switch kind {
	case workflow.DraftFollowUp:
		m.bus.Publish(eventbus.DraftFollowUpPatch(attemptID, snap))
	case workflow.DraftRetry:
		m.bus.Publish(eventbus.DraftRetryPatch(attemptID, snap))
	}
}
