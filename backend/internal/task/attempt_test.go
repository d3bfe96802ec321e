package task

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardenhq/warden/backend/internal/eventbus"
	"github.com/wardenhq/warden/backend/internal/exectracker"
	"github.com/wardenhq/warden/backend/internal/titlegen"
	"github.com/wardenhq/warden/backend/internal/workflow"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial")

	remote := t.TempDir()
	if out, err := exec.Command("git", "init", "--bare", "-b", "main", remote).CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v: %s", err, out)
	}
	run("remote", "add", "origin", remote)
	run("push", "origin", "main")
	return dir
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(exectracker.New(), eventbus.New(), titlegen.New(context.Background(), "", ""), t.TempDir(), "warden/w")
}

func TestCreateAttemptBranchesAndAddsWorktree(t *testing.T) {
	repoDir := initRepo(t)
	m := newTestManager(t)

	info, err := m.CreateAttempt(context.Background(), "task-1", "attempt-1", repoDir, "main", "fix the bug")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if info.Branch != "warden/w0" {
		t.Fatalf("expected first branch warden/w0, got %q", info.Branch)
	}
	if _, err := os.Stat(filepath.Join(info.WorktreeDir, "README.md")); err != nil {
		t.Fatalf("expected worktree populated: %v", err)
	}

	got, ok := m.Attempt("attempt-1")
	if !ok || got != info {
		t.Fatalf("expected Attempt to return the same info, got %+v ok=%v", got, ok)
	}
}

func TestCreateAttemptSecondAttemptGetsNextSequentialBranch(t *testing.T) {
	repoDir := initRepo(t)
	m := newTestManager(t)

	if _, err := m.CreateAttempt(context.Background(), "task-1", "attempt-1", repoDir, "main", "p1"); err != nil {
		t.Fatalf("CreateAttempt 1: %v", err)
	}
	info2, err := m.CreateAttempt(context.Background(), "task-1", "attempt-2", repoDir, "main", "p2")
	if err != nil {
		t.Fatalf("CreateAttempt 2: %v", err)
	}
	if info2.Branch != "warden/w1" {
		t.Fatalf("expected second branch warden/w1, got %q", info2.Branch)
	}
}

func TestSpawnStationRunsPlaintextHarnessAndAdvances(t *testing.T) {
	repoDir := initRepo(t)
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateAttempt(ctx, "task-1", "attempt-1", repoDir, "main", "p"); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	type call struct {
		attemptID string
		success   bool
	}
	advanced := make(chan call, 1)
	m.SetAdvanceFunc(func(ctx context.Context, attemptID string, success bool) {
		advanced <- call{attemptID, success}
	})

	station := workflow.Station{ID: "s1", AgentID: "plaintext", StepPrompt: "echo hello"}
	if err := m.SpawnStation(ctx, "attempt-1", station); err != nil {
		t.Fatalf("SpawnStation: %v", err)
	}

	select {
	case c := <-advanced:
		if c.attemptID != "attempt-1" || !c.success {
			t.Fatalf("expected advance(attempt-1, success=true), got %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for advance callback")
	}
}

func TestSpawnStationUnknownAttemptFails(t *testing.T) {
	m := newTestManager(t)
	err := m.SpawnStation(context.Background(), "no-such-attempt", workflow.Station{ID: "s1", AgentID: "plaintext"})
	if err == nil {
		t.Fatal("expected error for unknown attempt")
	}
}

func TestRunTerminatorActionsDoesNotPanicOnCleanDiff(t *testing.T) {
	repoDir := initRepo(t)
	m := newTestManager(t)
	ctx := context.Background()

	info, err := m.CreateAttempt(ctx, "task-1", "attempt-1", repoDir, "main", "p")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	// Make an innocuous committed change so the diff isn't empty.
	if err := os.WriteFile(filepath.Join(info.WorktreeDir, "notes.txt"), []byte("ok\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	add := exec.Command("git", "add", "notes.txt")
	add.Dir = info.WorktreeDir
	if out, err := add.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}
	commit := exec.Command("git", "commit", "-m", "notes")
	commit.Dir = info.WorktreeDir
	commit.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	if out, err := commit.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v: %s", err, out)
	}

	m.RunTerminatorActions(ctx, "attempt-1")
}

func TestGenerateTitleIsEmptyWithUnconfiguredGenerator(t *testing.T) {
	repoDir := initRepo(t)
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.CreateAttempt(ctx, "task-1", "attempt-1", repoDir, "main", "fix the bug"); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if got := m.GenerateTitle(ctx, "attempt-1", nil); got != "" {
		t.Fatalf("expected empty title, got %q", got)
	}
}
