// Package eventbus implements the process-wide patch stream: a single
// MsgStore-shaped channel carrying RFC-6902 patches whose paths address
// task, task-attempt, execution-process, and draft collections, so a UI
// can reconcile an in-memory projection by applying each patch in order.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wardenhq/warden/backend/internal/norm"
)

// Op is an RFC-6902 operation. Unlike the conversation patch stream (which
// only ever adds or replaces), entity collections also remove rows.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Resource tags which collection a Patch's path belongs to, so subscribers
// can route without re-parsing the pointer.
type Resource string

const (
	ResourceTask             Resource = "task"
	ResourceTaskAttempt      Resource = "task_attempt"
	ResourceExecutionProcess Resource = "execution_process"
	ResourceDraft            Resource = "draft"
)

// Patch is one entity-collection change, broadcast to every subscriber.
type Patch struct {
	Resource Resource        `json:"resource"`
	Op       Op              `json:"op"`
	Path     string          `json:"path"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// historyLimit bounds how many recent patches a newly-connecting subscriber
// replays before switching to live. Unlike msgbus's per-execution history,
// this is a fixed count rather than a byte budget: entity patches are small
// and short-lived in relevance, so a byte budget buys little.
const historyLimit = 1024

const subscriberBuffer = 256

type subscriber struct {
	ch     chan Patch
	closed bool
}

// Bus is the process-wide patch stream. One Bus exists per daemon process.
type Bus struct {
	mu        sync.Mutex
	history   []Patch
	subs      map[int]*subscriber
	nextSubID int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish appends p to history (evicting the oldest entry past
// historyLimit) and broadcasts it to every live subscriber. Publish never
// blocks on a slow reader: a subscriber with no room for the frame misses
// it and must reconcile from a later Subscribe call's history replay.
func (b *Bus) Publish(p Patch) {
	b.mu.Lock()
	b.history = append(b.history, p)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- p:
		default:
		}
	}
}

// Subscribe returns a channel yielding a snapshot of recent history followed
// by live patches, closed when ctx is cancelled or the returned cancel func
// is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Patch, func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	sub := &subscriber{ch: make(chan Patch, subscriberBuffer)}
	b.subs[id] = sub
	history := make([]Patch, len(b.history))
	copy(history, b.history)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok && !existing.closed {
			existing.closed = true
			delete(b.subs, id)
			close(existing.ch)
		}
		b.mu.Unlock()
	}

	out := make(chan Patch)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for _, p := range history {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		for {
			select {
			case p, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		unsub()
		close(done)
	}
	return out, cancel
}

func mustMarshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("eventbus: marshal patch value: %v", err))
	}
	return b
}

// TaskPatch builds a patch for the /tasks/{id} collection.
func TaskPatch(op Op, id string, value any) Patch {
	return Patch{Resource: ResourceTask, Op: op, Path: "/tasks/" + norm.EscapePointer(id), Value: mustMarshal(value)}
}

// TaskAttemptPatch builds a patch for the /task_attempts/{id} collection.
func TaskAttemptPatch(op Op, id string, value any) Patch {
	return Patch{Resource: ResourceTaskAttempt, Op: op, Path: "/task_attempts/" + norm.EscapePointer(id), Value: mustMarshal(value)}
}

// ExecutionProcessPatch builds a patch for the /execution_processes/{id}
// collection.
func ExecutionProcessPatch(op Op, id string, value any) Patch {
	return Patch{Resource: ResourceExecutionProcess, Op: op, Path: "/execution_processes/" + norm.EscapePointer(id), Value: mustMarshal(value)}
}

// DraftFollowUpPatch replaces an attempt's follow-up draft. Clearing it is
// a replace with an empty draft value, matching the follow-up draft's
// "clear" semantics (there is always exactly one follow-up Draft per
// attempt, never removed).
func DraftFollowUpPatch(attemptID string, value any) Patch {
	return Patch{
		Resource: ResourceDraft,
		Op:       OpReplace,
		Path:     "/drafts/" + norm.EscapePointer(attemptID) + "/follow_up",
		Value:    mustMarshal(value),
	}
}

// DraftRetryPatch replaces an attempt's retry draft. Clearing it is a
// replace with a null value, matching the retry draft's "clear" semantics.
func DraftRetryPatch(attemptID string, value any) Patch {
	return Patch{
		Resource: ResourceDraft,
		Op:       OpReplace,
		Path:     "/drafts/" + norm.EscapePointer(attemptID) + "/retry",
		Value:    mustMarshal(value),
	}
}
