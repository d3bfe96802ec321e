package workflow

import (
	"context"
	"fmt"
	"sync"
)

// TaskStatus mirrors spec.md's Task.status enum.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskInReview   TaskStatus = "in-review"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether a Task in this status accepts no further
// station execution.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// ExecutionStatus mirrors spec.md's ExecutionProcess.status enum.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecKilled    ExecutionStatus = "killed"
)

// FinishEvent carries the outcome of a station's ExecutionProcess, feeding
// the advancement algorithm.
type FinishEvent struct {
	AttemptID string
	StationID string
	Success   bool
	Status    ExecutionStatus
}

// Journal is the narrow persistence surface the driver needs. Every method
// must complete before the driver takes any further action that depends on
// it — station executions and status transitions are always journaled
// before their corresponding side effect runs.
type Journal interface {
	// CurrentStationID returns the attempt's current station, if any.
	CurrentStationID(ctx context.Context, attemptID string) (string, bool, error)
	// TaskStatus returns the status of the task owning attemptID.
	TaskStatus(ctx context.Context, attemptID string) (TaskStatus, error)
	// SetTaskStatus persists a new task status for the task owning attemptID.
	SetTaskStatus(ctx context.Context, attemptID string, status TaskStatus) error
	// RecordStationExecution journals a pending/running/completed station
	// execution row for audit and crash recovery.
	RecordStationExecution(ctx context.Context, attemptID, stationID string, status ExecutionStatus) error
	// SetCurrentStation persists the attempt's current station pointer.
	SetCurrentStation(ctx context.Context, attemptID, stationID string) error
	// CompleteWorkflowExecution marks the attempt's workflow execution
	// completed. The driver calls it just before the task status
	// transition (terminator action c); the two are separate journal
	// writes, not one atomic step.
	CompleteWorkflowExecution(ctx context.Context, attemptID string) error
}

// Spawner is how the driver starts the ExecutionProcess for a station;
// task.Manager implements it on top of ExecutionTracker's StartAndTrack,
// so this package need not import procexec/exectracker directly.
type Spawner interface {
	SpawnStation(ctx context.Context, attemptID string, station Station) error
}

// TerminatorActions are the best-effort, non-fatal steps run when a
// TaskAttempt reaches a terminator station (terminator action a/b): PR
// creation and a pre-PR safety scan. Failures are logged by the caller,
// never surfaced as a driver error (advancement must still complete).
type TerminatorActions interface {
	// RunTerminatorActions is called once an attempt has reached a
	// terminator station, before the workflow execution is marked
	// completed.
	RunTerminatorActions(ctx context.Context, attemptID string)
}

// Driver advances TaskAttempts through a Workflow Graph.
type Driver struct {
	graph      *Graph
	journal    Journal
	spawner    Spawner
	terminator TerminatorActions

	mu      sync.Mutex
	running map[string]bool // attemptID -> a station is currently running
}

// NewDriver builds a Driver for graph, backed by journal for persistence
// and spawner to start station executions. terminator may be nil, in
// which case terminator actions are skipped entirely.
func NewDriver(graph *Graph, journal Journal, spawner Spawner, terminator TerminatorActions) *Driver {
	return &Driver{
		graph:      graph,
		journal:    journal,
		spawner:    spawner,
		terminator: terminator,
		running:    make(map[string]bool),
	}
}

// SetGraph swaps the graph a running Driver advances attempts against, so
// a config hot-reload can take effect without restarting in-flight
// attempts. An attempt mid-advancement keeps using whichever graph
// currentGraph returns at the instant it reads it.
func (d *Driver) SetGraph(graph *Graph) {
	d.mu.Lock()
	d.graph = graph
	d.mu.Unlock()
}

func (d *Driver) currentGraph() *Graph {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.graph
}

// Start begins a TaskAttempt at the workflow's first station (lowest
// Position among non-terminator stations with no incoming transition is
// the caller's responsibility to pick; Start simply advances into the
// given station).
func (d *Driver) Start(ctx context.Context, attemptID string, firstStation Station) error {
	return d.advanceInto(ctx, attemptID, firstStation)
}

// Advance implements the advancement algorithm: given that attemptID just
// finished ev.StationID with ev.Success, select the successor, and either
// run terminator actions or advance into the next station.
func (d *Driver) Advance(ctx context.Context, ev FinishEvent) error {
	d.mu.Lock()
	delete(d.running, ev.AttemptID)
	d.mu.Unlock()

	status, err := d.journal.TaskStatus(ctx, ev.AttemptID)
	if err != nil {
		return fmt.Errorf("workflow: task status: %w", err)
	}
	if status.Terminal() {
		// A terminal task accepts no further station execution.
		return nil
	}

	graph := d.currentGraph()
	tr, ok := graph.Successor(ev.StationID, ev.Success)
	if !ok {
		return d.terminate(ctx, ev.AttemptID)
	}

	next, ok := graph.Station(tr.TargetStation)
	if !ok {
		return fmt.Errorf("workflow: transition targets unknown station %q", tr.TargetStation)
	}
	return d.advanceInto(ctx, ev.AttemptID, next)
}

// terminate runs any registered terminator actions (PR creation, a
// pre-merge safety scan) and then closes out the workflow execution.
func (d *Driver) terminate(ctx context.Context, attemptID string) error {
	if d.terminator != nil {
		d.terminator.RunTerminatorActions(ctx, attemptID)
	}
	if err := d.journal.RecordStationExecution(ctx, attemptID, "", ExecCompleted); err != nil {
		return fmt.Errorf("workflow: record terminator station execution: %w", err)
	}
	if err := d.journal.CompleteWorkflowExecution(ctx, attemptID); err != nil {
		return fmt.Errorf("workflow: complete workflow execution: %w", err)
	}
	if err := d.journal.SetTaskStatus(ctx, attemptID, TaskInReview); err != nil {
		return fmt.Errorf("workflow: set task in-review: %w", err)
	}
	return nil
}

// advanceInto journals a running StationExecution, enforces that an
// attempt may have at most one running execution at a time, then spawns
// the station.
func (d *Driver) advanceInto(ctx context.Context, attemptID string, station Station) error {
	d.mu.Lock()
	if d.running[attemptID] {
		d.mu.Unlock()
		return fmt.Errorf("workflow: attempt %s already has a running execution", attemptID)
	}
	d.running[attemptID] = true
	d.mu.Unlock()

	if err := d.journal.RecordStationExecution(ctx, attemptID, station.ID, ExecRunning); err != nil {
		d.mu.Lock()
		delete(d.running, attemptID)
		d.mu.Unlock()
		return fmt.Errorf("workflow: record station execution: %w", err)
	}
	if err := d.journal.SetCurrentStation(ctx, attemptID, station.ID); err != nil {
		return fmt.Errorf("workflow: set current station: %w", err)
	}

	if err := d.spawner.SpawnStation(ctx, attemptID, station); err != nil {
		d.mu.Lock()
		delete(d.running, attemptID)
		d.mu.Unlock()
		return fmt.Errorf("workflow: spawn station %s: %w", station.ID, err)
	}
	return nil
}

// IsRunning reports whether attemptID currently has a station execution in
// flight. PollDrafts callers use this to skip attempts that aren't between
// stations: a follow-up or retry only ever resumes an idle attempt.
func (d *Driver) IsRunning(attemptID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[attemptID]
}

// Cancel kills the running ExecutionProcess for attemptID, if any. Cancel
// records no status itself (ExecKilled is not written anywhere) and never
// advances the workflow.
func (d *Driver) Cancel(ctx context.Context, attemptID string, kill func(ctx context.Context, attemptID string) error) error {
	d.mu.Lock()
	_, isRunning := d.running[attemptID]
	d.mu.Unlock()
	if !isRunning {
		return nil
	}
	return kill(ctx, attemptID)
}

// PollDrafts attempts to send any eligible follow-up/retry draft for
// attemptID, per the follow-up algorithm: try_mark_sending, spawn, then
// clear or restore depending on spawn outcome.
func (d *Driver) PollDrafts(ctx context.Context, draft *Draft, send func(ctx context.Context, snap DraftSnapshot) error) error {
	if !draft.TryMarkSending() {
		return nil
	}
	snap := draft.Snapshot()
	if err := send(ctx, snap); err != nil {
		draft.FailSend()
		return fmt.Errorf("workflow: draft send: %w", err)
	}
	draft.CompleteSend()
	return nil
}
