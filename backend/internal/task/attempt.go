// Package task glues the workflow driver, execution tracker, git worktree
// isolation, safety scan, and title generation into the operations a
// TaskAttempt actually performs: branching, spawning a station's agent,
// and running terminator actions once the attempt reaches a sink station.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maruel/ksid"

	"github.com/wardenhq/warden/backend/internal/agent"
	"github.com/wardenhq/warden/backend/internal/eventbus"
	"github.com/wardenhq/warden/backend/internal/exectracker"
	"github.com/wardenhq/warden/backend/internal/gitutil"
	"github.com/wardenhq/warden/backend/internal/msgbus"
	"github.com/wardenhq/warden/backend/internal/norm"
	"github.com/wardenhq/warden/backend/internal/procexec"
	"github.com/wardenhq/warden/backend/internal/safety"
	"github.com/wardenhq/warden/backend/internal/titlegen"
	"github.com/wardenhq/warden/backend/internal/workflow"
)

// AttemptInfo is the working-copy state a Manager needs for a TaskAttempt
// beyond what Store's narrow schema journals: the git identity of the
// isolated worktree each attempt runs its stations in.
type AttemptInfo struct {
	TaskID      string
	AttemptID   string
	RepoDir     string
	BaseBranch  string
	Branch      string
	WorktreeDir string
	Prompt      string // the task's original prompt, kept for titlegen.
	SessionID   string // set once the harness reports one, for follow-up resume.

	// LastStation is the most recently spawned station, kept so a
	// follow-up or retry draft knows which agent/prompt to re-invoke
	// without the workflow graph being threaded through the send path.
	LastStation workflow.Station
}

// ExecutionStore is the narrow persistence surface the Manager journals
// ExecutionProcess rows through: a row is created "running" at spawn time
// and completed on exit, so a crash mid-run leaves exectracker.Recover
// something real to find on the next startup.
type ExecutionStore interface {
	CreateExecutionProcess(ctx context.Context, id, attemptID, runReason string) error
	CompleteExecutionProcess(ctx context.Context, id string, success bool, exitCode int) error
}

// Manager implements workflow.Spawner and workflow.TerminatorActions,
// turning a Station into a spawned agent process in the attempt's
// worktree, and a terminator station into a logged safety scan.
type Manager struct {
	mu       sync.Mutex
	attempts map[string]*AttemptInfo
	drafts   map[string]map[workflow.DraftKind]*workflow.Draft

	tracker      *exectracker.Tracker
	bus          *eventbus.Bus
	titles       *titlegen.Generator
	worktreeRoot string
	branchPrefix string
	execStore    ExecutionStore
	draftStore   DraftStore

	// advance is called once a spawned station process exits, so the
	// workflow driver can move the attempt to its next station. Set via
	// SetAdvanceFunc once the Driver exists (Manager is constructed before
	// Driver since Driver needs Manager as its Spawner).
	advance func(ctx context.Context, attemptID string, success bool)
}

// NewManager creates a Manager. worktreeRoot is where per-attempt
// worktrees are created; branchPrefix names attempt branches
// "<branchPrefix><seq>" (e.g. "warden/w3").
func NewManager(tracker *exectracker.Tracker, bus *eventbus.Bus, titles *titlegen.Generator, worktreeRoot, branchPrefix string) *Manager {
	return &Manager{
		attempts:     make(map[string]*AttemptInfo),
		drafts:       make(map[string]map[workflow.DraftKind]*workflow.Draft),
		tracker:      tracker,
		bus:          bus,
		titles:       titles,
		worktreeRoot: worktreeRoot,
		branchPrefix: branchPrefix,
	}
}

// SetAdvanceFunc wires the workflow driver's advancement back into the
// Manager, completing the dependency cycle Spawner/TerminatorActions
// require.
func (m *Manager) SetAdvanceFunc(fn func(ctx context.Context, attemptID string, success bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance = fn
}

// SetExecutionStore wires the journal ExecutionProcess rows are persisted
// through. Left unset, executions are tracked only in memory (used by
// tests that don't need crash-recovery persistence).
func (m *Manager) SetExecutionStore(store ExecutionStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execStore = store
}

// CreateAttempt fetches repoDir, assigns the next sequential branch name,
// creates the branch off origin/baseBranch, and checks out an isolated
// worktree for it.
func (m *Manager) CreateAttempt(ctx context.Context, taskID, attemptID, repoDir, baseBranch, prompt string) (*AttemptInfo, error) {
	if err := gitutil.Fetch(ctx, repoDir); err != nil {
		return nil, fmt.Errorf("task: fetch: %w", err)
	}
	highest, err := gitutil.MaxBranchSeqNum(ctx, repoDir, m.branchPrefix)
	if err != nil {
		return nil, fmt.Errorf("task: resolve branch sequence: %w", err)
	}
	branch := fmt.Sprintf("%s%d", m.branchPrefix, highest+1)
	if err := gitutil.CreateBranch(ctx, repoDir, branch, "origin/"+baseBranch); err != nil {
		return nil, fmt.Errorf("task: create branch: %w", err)
	}
	worktreeDir := gitutil.WorktreePath(m.worktreeRoot, branch)
	if err := gitutil.AddWorktree(ctx, repoDir, worktreeDir, branch); err != nil {
		return nil, fmt.Errorf("task: add worktree: %w", err)
	}

	info := &AttemptInfo{
		TaskID:      taskID,
		AttemptID:   attemptID,
		RepoDir:     repoDir,
		BaseBranch:  baseBranch,
		Branch:      branch,
		WorktreeDir: worktreeDir,
		Prompt:      prompt,
	}
	m.mu.Lock()
	m.attempts[attemptID] = info
	m.mu.Unlock()
	return info, nil
}

// Attempt returns the info previously created by CreateAttempt.
func (m *Manager) Attempt(attemptID string) (*AttemptInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.attempts[attemptID]
	return info, ok
}

// InFlightAttemptIDs lists every attempt this process has loaded
// AttemptInfo for, the set a background draft poller iterates each tick.
func (m *Manager) InFlightAttemptIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.attempts))
	for id := range m.attempts {
		ids = append(ids, id)
	}
	return ids
}

// SpawnStation implements workflow.Spawner: it resolves station.AgentID to
// a Backend, builds the command for the attempt's worktree, and starts it
// under the execution tracker. The normalizer runs in its own goroutine,
// feeding json_patch entries back into the same MsgStore the raw bytes
// came from.
func (m *Manager) SpawnStation(ctx context.Context, attemptID string, station workflow.Station) error {
	info, ok := m.Attempt(attemptID)
	if !ok {
		return fmt.Errorf("task: no attempt info for %s", attemptID)
	}

	backend, err := agent.ForHarness(agent.Harness(station.AgentID))
	if err != nil {
		return fmt.Errorf("task: resolve harness for station %s: %w", station.ID, err)
	}

	opts := agent.Options{Prompt: station.StepPrompt, WorktreePath: info.WorktreeDir}
	session, err := backend.Spawn(opts)
	if err != nil {
		return fmt.Errorf("task: build command for station %s: %w", station.ID, err)
	}

	m.setLastStation(attemptID, station)
	return m.runSpawnedSession(ctx, info, station.ID, backend, session)
}

// runSpawnedSession starts an already-built agent session under the
// execution tracker, journaling the ExecutionProcess row (running at
// spawn, completed on exit) and watching for the harness's reported
// session id so a later follow-up or retry can resume it. Shared by fresh
// station spawns and draft-driven follow-up/retry sends.
func (m *Manager) runSpawnedSession(ctx context.Context, info *AttemptInfo, stationID string, backend agent.Backend, session agent.Session) error {
	executionID := ksid.NewID().String()

	m.mu.Lock()
	execStore := m.execStore
	m.mu.Unlock()
	if execStore != nil {
		if err := execStore.CreateExecutionProcess(ctx, executionID, info.AttemptID, exectracker.RunReasonCodingAgent); err != nil {
			return fmt.Errorf("task: journal execution process: %w", err)
		}
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.ExecutionProcessPatch(eventbus.OpAdd, executionID, map[string]any{
			"task_attempt_id": info.AttemptID,
			"station_id":      stationID,
			"status":          "running",
		}))
	}

	store, err := m.tracker.StartAndTrack(ctx, executionID, session.Spec, func(status procexec.ExitStatus, waitErr error) {
		success := waitErr == nil && status.Success
		if execStore != nil {
			if err := execStore.CompleteExecutionProcess(context.WithoutCancel(ctx), executionID, success, status.Code); err != nil {
				slog.Warn("task: complete execution process", "execution", executionID, "err", err)
			}
		}
		if m.bus != nil {
			m.bus.Publish(eventbus.ExecutionProcessPatch(eventbus.OpReplace, executionID, map[string]any{
				"status":    terminalStatus(success),
				"exit_code": status.Code,
			}))
		}
		m.mu.Lock()
		advance := m.advance
		m.mu.Unlock()
		if advance != nil {
			advance(context.WithoutCancel(ctx), info.AttemptID, success)
		}
	})
	if err != nil {
		if execStore != nil {
			_ = execStore.CompleteExecutionProcess(ctx, executionID, false, -1)
		}
		return fmt.Errorf("task: start station %s: %w", stationID, err)
	}

	go m.captureSessionID(ctx, info.AttemptID, store)
	go backend.NormalizeLogs().Normalize(ctx, store, info.WorktreeDir)
	return nil
}

// captureSessionID watches store for the harness's KindSessionID message
// and records it on the attempt, independently of the normalizer's own
// subscription (MsgStore.HistoryPlusStream supports any number of
// concurrent subscribers).
func (m *Manager) captureSessionID(ctx context.Context, attemptID string, store *msgbus.MsgStore) {
	msgs, cancel := store.HistoryPlusStream(ctx)
	defer cancel()
	for msg := range msgs {
		switch msg.Kind {
		case msgbus.KindSessionID:
			m.setSessionID(attemptID, msg.Text)
		case msgbus.KindFinished:
			return
		}
	}
}

func (m *Manager) setLastStation(attemptID string, station workflow.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.attempts[attemptID]; ok {
		info.LastStation = station
	}
}

func (m *Manager) setSessionID(attemptID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.attempts[attemptID]; ok {
		info.SessionID = sessionID
	}
}

func terminalStatus(success bool) string {
	if success {
		return "completed"
	}
	return "failed"
}

// RunTerminatorActions implements workflow.TerminatorActions: it runs the
// safety scan over the attempt's full diff and logs the branch as ready
// for a pull request. It does not push the branch or open a pull request
// (the GitHub API client is out of scope). Failures are logged only, never surfaced: the
// workflow driver must still complete advancement.
func (m *Manager) RunTerminatorActions(ctx context.Context, attemptID string) {
	info, ok := m.Attempt(attemptID)
	if !ok {
		slog.Warn("task: terminator actions requested for unknown attempt", "attempt", attemptID)
		return
	}

	numstat, err := gitutil.DiffNumstat(ctx, info.WorktreeDir, info.BaseBranch, info.Branch)
	if err != nil {
		slog.Warn("task: diff numstat failed before safety scan", "attempt", attemptID, "err", err)
	}
	diffFiles := parseNumstatForSafety(numstat)

	issues, err := safety.Scan(ctx, info.WorktreeDir, info.BaseBranch, info.Branch, diffFiles)
	if err != nil {
		slog.Warn("task: safety scan failed", "attempt", attemptID, "err", err)
	}
	for _, iss := range issues {
		slog.Warn("task: safety issue found", "attempt", attemptID, "file", iss.File, "kind", iss.Kind, "detail", iss.Detail)
	}

	slog.Info("task: attempt ready for PR", "attempt", attemptID, "branch", info.Branch, "issues", len(issues))
}

// GenerateTitle asks the configured title generator (a no-op if
// unconfigured) for a short summary title from the attempt's original
// prompt and normalized conversation entries.
func (m *Manager) GenerateTitle(ctx context.Context, attemptID string, entries []norm.Entry) string {
	info, ok := m.Attempt(attemptID)
	if !ok {
		return ""
	}
	return m.titles.Generate(ctx, info.Prompt, entries)
}

func parseNumstatForSafety(numstat string) []safety.DiffFile {
	ds := ParseDiffNumstat(numstat)
	out := make([]safety.DiffFile, 0, len(ds))
	for _, f := range ds {
		out = append(out, safety.DiffFile{Path: f.Path, Binary: f.Binary})
	}
	return out
}
