// Package exectracker registers supervised executions, forwards their
// stdout/stderr into a per-execution log bus, and reaps them on exit. It is
// the Go analogue of the original execution tracker: a registry plus an
// exit-monitor goroutine per running process, instead of a polling task.
package exectracker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/backend/internal/msgbus"
	"github.com/wardenhq/warden/backend/internal/procexec"
)

// Execution is one tracked, running (or just-finished) process.
type Execution struct {
	ID     string
	Handle *procexec.Handle
	Store  *msgbus.MsgStore
	cancel context.CancelFunc
}

// Tracker is the registry of live executions, keyed by ExecutionProcess ID.
type Tracker struct {
	mu  sync.RWMutex
	set map[string]*Execution
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{set: make(map[string]*Execution)}
}

// Get returns the tracked execution for id, if any.
func (t *Tracker) Get(id string) (*Execution, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ex, ok := t.set[id]
	return ex, ok
}

// Snapshot returns the IDs of every currently-tracked (i.e. still running)
// execution. Used by the orphan-recovery sweep to decide what is dangling
// in the Store versus what this process instance is actually watching.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.set))
	for id := range t.set {
		ids = append(ids, id)
	}
	return ids
}

// OnFinish is called with the process's normalized exit status once it has
// been observed to have exited and the execution has been removed from the
// tracker.
type OnFinish func(status procexec.ExitStatus, waitErr error)

// StartAndTrack spawns spec, registers the resulting execution under id,
// forwards its stdout/stderr lines into a fresh msgbus.Debouncer feeding a
// new msgbus.MsgStore, and launches the exit monitor. It returns the
// MsgStore immediately so subscribers can attach before the process
// produces its first byte.
func (t *Tracker) StartAndTrack(ctx context.Context, id string, spec procexec.CommandSpec, onFinish OnFinish) (*msgbus.MsgStore, error) {
	h, err := procexec.Start(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("exectracker: start %s: %w", id, err)
	}

	store := msgbus.New()
	execCtx, cancel := context.WithCancel(ctx)
	ex := &Execution{ID: id, Handle: h, Store: store, cancel: cancel}

	t.mu.Lock()
	t.set[id] = ex
	t.mu.Unlock()

	t.runForwardersAndMonitor(execCtx, ex, onFinish)
	return store, nil
}

// Kill terminates the process group for id, if still tracked.
func (t *Tracker) Kill(id string) error {
	t.mu.RLock()
	ex, ok := t.set[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("exectracker: %s: %w", id, errNotTracked)
	}
	return ex.Handle.Kill()
}

var errNotTracked = fmt.Errorf("not tracked")

// runForwardersAndMonitor launches one goroutine group per execution:
// stdout forwarder, stderr forwarder, and the exit monitor that waits on
// the process and tears everything down once it has finished. Forwarder
// errors are not acted on: the group's derived context is unused and the
// monitor discards the group's error, so each forwarder simply runs until
// its pipe reaches EOF or fails.
func (t *Tracker) runForwardersAndMonitor(ctx context.Context, ex *Execution, onFinish OnFinish) {
	stdout, stderr := ex.Handle.StreamLines()
	debouncer := msgbus.NewDebouncer(ex.Store)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for stdout.Scan() {
			debouncer.Feed(msgbus.Msg{Kind: msgbus.KindStdout, Text: stdout.Text() + "\n"})
		}
		return stdout.Err()
	})
	g.Go(func() error {
		for stderr.Scan() {
			debouncer.Feed(msgbus.Msg{Kind: msgbus.KindStderr, Text: stderr.Text() + "\n"})
		}
		return stderr.Err()
	})

	go func() {
		// Forwarders finish (EOF) when the process closes its pipes, which
		// normally happens at or before exit; draining them before Wait
		// avoids losing buffered output on a racy fast-exiting process.
		_ = g.Wait()
		status, waitErr := ex.Handle.Wait()
		debouncer.Close()
		ex.Store.PushFinished()

		t.mu.Lock()
		delete(t.set, ex.ID)
		t.mu.Unlock()
		ex.cancel()

		if onFinish != nil {
			onFinish(status, waitErr)
		}
	}()
}
