package exectracker

import (
	"context"
	"testing"
	"time"

	"github.com/wardenhq/warden/backend/internal/msgbus"
	"github.com/wardenhq/warden/backend/internal/procexec"
)

func TestStartAndTrackForwardsOutputAndReaps(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	finished := make(chan procexec.ExitStatus, 1)
	store, err := tr.StartAndTrack(ctx, "exec-1", procexec.CommandSpec{
		Program: "sh",
		Args:    []string{"-c", "echo hello"},
	}, func(status procexec.ExitStatus, waitErr error) {
		finished <- status
	})
	if err != nil {
		t.Fatalf("StartAndTrack: %v", err)
	}

	if _, ok := tr.Get("exec-1"); !ok {
		t.Fatal("expected exec-1 to be tracked immediately after start")
	}

	var status procexec.ExitStatus
	select {
	case status = <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for execution to finish")
	}
	if !status.Success {
		t.Fatalf("expected success, got %+v", status)
	}

	if _, ok := tr.Get("exec-1"); ok {
		t.Fatal("expected exec-1 to be removed from tracker after finishing")
	}

	hist := store.History()
	foundStdout, foundFinished := false, false
	for _, m := range hist {
		if m.Kind == msgbus.KindStdout {
			foundStdout = true
		}
		if m.Kind == msgbus.KindFinished {
			foundFinished = true
		}
	}
	if !foundStdout || !foundFinished {
		t.Fatalf("expected stdout then finished in history, got %+v", hist)
	}
}

func TestKillUntrackedReturnsError(t *testing.T) {
	tr := New()
	if err := tr.Kill("does-not-exist"); err == nil {
		t.Fatal("expected an error killing an untracked execution")
	}
}

type fakeStore struct {
	running       []DanglingExecution
	failedIDs     []string
	inReviewTasks []string
}

func (f *fakeStore) ListRunning(ctx context.Context) ([]DanglingExecution, error) {
	return f.running, nil
}

func (f *fakeStore) MarkExecutionFailed(ctx context.Context, id string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

func (f *fakeStore) MarkTaskInReview(ctx context.Context, taskID string) error {
	f.inReviewTasks = append(f.inReviewTasks, taskID)
	return nil
}

func TestRecoverMarksDanglingExecutionsFailed(t *testing.T) {
	store := &fakeStore{running: []DanglingExecution{
		{ID: "e1", RunReason: RunReasonCodingAgent, TaskID: "t1"},
		{ID: "e2", RunReason: "other", TaskID: "t2"},
	}}

	n, err := Recover(context.Background(), store)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 recovered, got %d", n)
	}
	if len(store.failedIDs) != 2 {
		t.Fatalf("expected both executions marked failed, got %v", store.failedIDs)
	}
	if len(store.inReviewTasks) != 1 || store.inReviewTasks[0] != "t1" {
		t.Fatalf("expected only t1 moved to in-review, got %v", store.inReviewTasks)
	}
}

func TestRecoverIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	n, err := Recover(context.Background(), store)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no-op recovery on empty running set, got %d", n)
	}
}
