// Package procexec spawns external processes as kill-safe groups: every
// child is placed in its own process group so that killing it also reaps
// any grandchildren it spawned, and streams its stdout/stderr to callers
// without ever blocking the supervising goroutine on a slow reader.
package procexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// CommandSpec describes a process to spawn.
type CommandSpec struct {
	// Program is the executable to run, resolved via exec.LookPath semantics.
	// When Shell is true, Program is instead the command line text to run
	// through the platform shell, and Args is ignored.
	Program string
	// Args are passed to Program, excluding argv[0]. Ignored when Shell is
	// true.
	Args []string
	// Dir is the working directory the process runs in.
	Dir string
	// Env, if non-nil, replaces the inherited environment entirely.
	Env []string
	// Stdin, if non-nil, is piped to the process; exec.Cmd writes it to
	// completion on its own goroutine and closes the pipe once drained.
	Stdin io.Reader
	// Shell, when true, runs Program as a command line through the
	// platform shell (sh -c on Unix, cmd /C on Windows) instead of
	// exec'ing it directly.
	Shell bool
}

// ExitStatus is the platform-normalized result of a finished process.
type ExitStatus struct {
	// Code is the process exit code, or -1 if the process was terminated by
	// a signal rather than exiting normally.
	Code int
	// Success is true iff the process exited with code 0.
	Success bool
	// Signal is the name of the signal that terminated the process, empty
	// if the process exited normally. Only ever populated on Unix.
	Signal string
}

// ErrNotStarted is returned by Handle methods called before Start succeeds.
var ErrNotStarted = errors.New("procexec: process not started")

// Handle is a running (or finished) supervised process.
type Handle struct {
	cmd *exec.Cmd

	stdout io.ReadCloser
	stderr io.ReadCloser

	mu     sync.Mutex
	waited bool
	status ExitStatus
	waitErr error
}

// Start spawns spec as a new kill-safe process group and returns a Handle
// once the process has been launched. The caller owns the returned Handle's
// lifecycle: it must eventually call Wait (directly or via an exit monitor)
// to release resources, and may call Kill to terminate the group early.
func Start(ctx context.Context, spec CommandSpec) (*Handle, error) {
	program, args := spec.Program, spec.Args
	if spec.Shell {
		program, args = shellCommand(spec.Program)
	}
	cmd := exec.CommandContext(ctx, program, args...) //nolint:gosec // spec is constructed by trusted callers, not from raw user input.
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	if spec.Stdin != nil {
		cmd.Stdin = spec.Stdin
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("procexec: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("procexec: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("procexec: start %s: %w", spec.Program, err)
	}

	return &Handle{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// PID returns the OS process id of the running process.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// StreamLines returns scanners over the process's stdout and stderr. Callers
// typically feed each line to a Debouncer. The scanners become invalid once
// the process exits and Wait has been called.
func (h *Handle) StreamLines() (stdout, stderr *bufio.Scanner) {
	stdout = bufio.NewScanner(h.stdout)
	stdout.Buffer(make([]byte, 64*1024), 16*1024*1024)
	stderr = bufio.NewScanner(h.stderr)
	stderr.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return stdout, stderr
}

// Wait blocks until the process exits and returns its normalized status.
// Safe to call concurrently; all callers observe the same result.
func (h *Handle) Wait() (ExitStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waited {
		return h.status, h.waitErr
	}
	h.waited = true
	err := h.cmd.Wait()
	h.status = normalizeExitStatus(h.cmd, err)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			h.waitErr = fmt.Errorf("procexec: wait: %w", err)
		}
	}
	return h.status, h.waitErr
}

// Kill terminates the entire process group, not just the direct child, so
// that grandchildren spawned by the agent (shells, linters, build tools)
// are reaped too.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return ErrNotStarted
	}
	return killProcessGroup(h.cmd)
}

// normalizeExitStatus builds an ExitStatus from the result of cmd.Wait.
func normalizeExitStatus(cmd *exec.Cmd, waitErr error) ExitStatus {
	state := cmd.ProcessState
	if state == nil {
		return ExitStatus{Code: -1}
	}
	status := ExitStatus{
		Code:    state.ExitCode(),
		Success: state.Success(),
	}
	if sig := signalFromState(state); sig != "" {
		status.Signal = sig
		status.Code = -1
	}
	_ = waitErr
	return status
}
