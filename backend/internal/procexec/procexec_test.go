package procexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStartWaitSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Program: "true"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !status.Success || status.Code != 0 {
		t.Fatalf("expected success exit 0, got %+v", status)
	}
}

func TestStartWaitFailureExitCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Program: "sh", Args: []string{"-c", "exit 7"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, _ := h.Wait()
	if status.Success || status.Code != 7 {
		t.Fatalf("expected failed exit 7, got %+v", status)
	}
}

func TestStreamLinesCapturesStdout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Program: "sh", Args: []string{"-c", "echo one; echo two"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stdout, _ := h.StreamLines()
	var lines []string
	for stdout.Scan() {
		lines = append(lines, stdout.Text())
	}
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestKillTerminatesLongRunningProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Program: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}

func TestShellDispatchesThroughPlatformShell(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Shell: true, Program: "echo via-shell"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stdout, _ := h.StreamLines()
	var lines []string
	for stdout.Scan() {
		lines = append(lines, stdout.Text())
	}
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(lines) != 1 || lines[0] != "via-shell" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestStdinIsPipedToProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{
		Program: "cat",
		Stdin:   strings.NewReader("fed from stdin"),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stdout, _ := h.StreamLines()
	var lines []string
	for stdout.Scan() {
		lines = append(lines, stdout.Text())
	}
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(lines) != 1 || lines[0] != "fed from stdin" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestWaitIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := Start(ctx, CommandSpec{Program: "true"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s1, _ := h.Wait()
	s2, _ := h.Wait()
	if s1 != s2 {
		t.Fatalf("expected repeated Wait to return identical status, got %+v vs %+v", s1, s2)
	}
}
