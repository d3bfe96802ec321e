package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeJournal struct {
	mu                sync.Mutex
	current           map[string]string
	taskStatus        map[string]TaskStatus
	recorded          []ExecutionStatus
	completedWorkflow []string
	failSetStation    bool
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{
		current:    make(map[string]string),
		taskStatus: make(map[string]TaskStatus),
	}
}

func (f *fakeJournal) CurrentStationID(ctx context.Context, attemptID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.current[attemptID]
	return id, ok, nil
}

func (f *fakeJournal) TaskStatus(ctx context.Context, attemptID string) (TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.taskStatus[attemptID]
	if !ok {
		return TaskInProgress, nil
	}
	return s, nil
}

func (f *fakeJournal) SetTaskStatus(ctx context.Context, attemptID string, status TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskStatus[attemptID] = status
	return nil
}

func (f *fakeJournal) RecordStationExecution(ctx context.Context, attemptID, stationID string, status ExecutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, status)
	return nil
}

func (f *fakeJournal) SetCurrentStation(ctx context.Context, attemptID, stationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetStation {
		return errors.New("set current station failed")
	}
	f.current[attemptID] = stationID
	return nil
}

func (f *fakeJournal) CompleteWorkflowExecution(ctx context.Context, attemptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedWorkflow = append(f.completedWorkflow, attemptID)
	return nil
}

type fakeSpawner struct {
	mu      sync.Mutex
	spawned []string
	failFor string
}

func (f *fakeSpawner) SpawnStation(ctx context.Context, attemptID string, station Station) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if station.ID == f.failFor {
		return errors.New("spawn failed")
	}
	f.spawned = append(f.spawned, station.ID)
	return nil
}

type fakeTerminator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTerminator) RunTerminatorActions(ctx context.Context, attemptID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, attemptID)
}

func twoStationGraph() *Graph {
	wf := Workflow{ID: "wf1", Name: "plan-then-build"}
	stations := []Station{
		{ID: "s1", WorkflowID: "wf1", Name: "plan", Position: 0},
		{ID: "s2", WorkflowID: "wf1", Name: "build", Position: 1, IsTerminator: true},
	}
	transitions := []Transition{
		{ID: "t1", WorkflowID: "wf1", SourceStation: "s1", TargetStation: "s2", Condition: ConditionAny, CreatedAt: time.Unix(1, 0)},
	}
	return NewGraph(wf, stations, transitions)
}

func TestStartJournalsBeforeSpawning(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	d := NewDriver(graph, journal, spawner, nil)

	s1, _ := graph.Station("s1")
	if err := d.Start(context.Background(), "attempt1", s1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(journal.recorded) != 1 || journal.recorded[0] != ExecRunning {
		t.Fatalf("expected a running execution journaled before spawn, got %v", journal.recorded)
	}
	if len(spawner.spawned) != 1 || spawner.spawned[0] != "s1" {
		t.Fatalf("expected station s1 spawned, got %v", spawner.spawned)
	}
}

func TestAdvanceIntoRejectsASecondConcurrentExecution(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	d := NewDriver(graph, journal, spawner, nil)

	s1, _ := graph.Station("s1")
	if err := d.Start(context.Background(), "attempt1", s1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.advanceInto(context.Background(), "attempt1", s1); err == nil {
		t.Fatal("expected the second concurrent advanceInto for the same attempt to fail")
	}
}

func TestAdvanceMovesToSuccessorOnSuccess(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	terminator := &fakeTerminator{}
	d := NewDriver(graph, journal, spawner, terminator)

	s1, _ := graph.Station("s1")
	if err := d.Start(context.Background(), "attempt1", s1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := d.Advance(context.Background(), FinishEvent{AttemptID: "attempt1", StationID: "s1", Success: true, Status: ExecCompleted})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(spawner.spawned) != 2 || spawner.spawned[1] != "s2" {
		t.Fatalf("expected station s2 spawned next, got %v", spawner.spawned)
	}
}

func TestAdvanceRunsTerminatorActionsAtGraphSink(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	terminator := &fakeTerminator{}
	d := NewDriver(graph, journal, spawner, terminator)

	s2, _ := graph.Station("s2")
	if err := d.Start(context.Background(), "attempt1", s2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := d.Advance(context.Background(), FinishEvent{AttemptID: "attempt1", StationID: "s2", Success: true, Status: ExecCompleted})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(terminator.calls) != 1 || terminator.calls[0] != "attempt1" {
		t.Fatalf("expected terminator actions run once for attempt1, got %v", terminator.calls)
	}
	if len(journal.completedWorkflow) != 1 {
		t.Fatalf("expected workflow execution completed once, got %v", journal.completedWorkflow)
	}
	if status, _ := journal.TaskStatus(context.Background(), "attempt1"); status != TaskInReview {
		t.Fatalf("expected task moved to in-review, got %q", status)
	}
}

func TestAdvanceIsANoOpOnceTaskIsTerminal(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	journal.taskStatus["attempt1"] = TaskCancelled
	spawner := &fakeSpawner{}
	d := NewDriver(graph, journal, spawner, nil)

	err := d.Advance(context.Background(), FinishEvent{AttemptID: "attempt1", StationID: "s1", Success: true})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(spawner.spawned) != 0 {
		t.Fatalf("expected no station spawned for a cancelled task, got %v", spawner.spawned)
	}
}

func TestAdvanceReleasesRunningSlotOnSpawnFailure(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{failFor: "s1"}
	d := NewDriver(graph, journal, spawner, nil)

	s1, _ := graph.Station("s1")
	if err := d.Start(context.Background(), "attempt1", s1); err == nil {
		t.Fatal("expected Start to surface the spawn failure")
	}
	// The running slot must have been released so a retry can proceed.
	spawner.failFor = ""
	if err := d.Start(context.Background(), "attempt1", s1); err != nil {
		t.Fatalf("expected retry after a released slot to succeed, got %v", err)
	}
}

func TestPollDraftsSendsEligibleDraftExactlyOnce(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	d := NewDriver(graph, journal, spawner, nil)

	draft := NewDraft("attempt1", DraftFollowUp)
	draft.Set("keep going", nil, "")

	var sent []string
	send := func(ctx context.Context, snap DraftSnapshot) error {
		sent = append(sent, snap.Prompt)
		return nil
	}
	if err := d.PollDrafts(context.Background(), draft, send); err != nil {
		t.Fatalf("PollDrafts: %v", err)
	}
	if len(sent) != 1 || sent[0] != "keep going" {
		t.Fatalf("expected one send with the queued prompt, got %v", sent)
	}
	if draft.Snapshot().Queued {
		t.Fatal("expected the draft cleared after a successful send")
	}

	// Polling again with nothing queued must not invoke send.
	if err := d.PollDrafts(context.Background(), draft, send); err != nil {
		t.Fatalf("PollDrafts on an empty draft: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected no additional send, got %v", sent)
	}
}

func TestPollDraftsRestoresDraftOnSendFailure(t *testing.T) {
	graph := twoStationGraph()
	journal := newFakeJournal()
	spawner := &fakeSpawner{}
	d := NewDriver(graph, journal, spawner, nil)

	draft := NewDraft("attempt1", DraftRetry)
	draft.Set("retry please", nil, "")

	send := func(ctx context.Context, snap DraftSnapshot) error {
		return errors.New("spawn failed")
	}
	if err := d.PollDrafts(context.Background(), draft, send); err == nil {
		t.Fatal("expected PollDrafts to surface the send error")
	}
	snap := draft.Snapshot()
	if snap.Sending {
		t.Fatal("expected sending cleared after a failed send")
	}
	if !snap.Queued || snap.Prompt != "retry please" {
		t.Fatalf("expected the draft preserved for a later retry, got %+v", snap)
	}
}
