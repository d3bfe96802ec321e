// Package msgbus implements the per-execution log bus: a bounded,
// byte-budgeted history plus a live fan-out, shared by the process
// supervisor (raw stdout/stderr), the log normalizer (JSON patches), and any
// number of HTTP/WS subscribers.
package msgbus

import (
	"context"
	"sync"
)

// Kind discriminates the payload carried by a Msg.
type Kind int

const (
	// KindStdout carries a coalesced chunk of the agent's stdout.
	KindStdout Kind = iota
	// KindStderr carries a coalesced chunk of the agent's stderr.
	KindStderr
	// KindJSONPatch carries an RFC-6902 patch against the conversation.
	KindJSONPatch
	// KindSessionID carries the agent-reported session identifier, once known.
	KindSessionID
	// KindFinished is a terminal sentinel; no further messages follow it.
	KindFinished
)

// Name returns the wire event name used by HTTP/WS streamers.
func (k Kind) Name() string {
	switch k {
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindJSONPatch:
		return "json_patch"
	case KindSessionID:
		return "session_id"
	case KindFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Msg is a single message flowing through a MsgStore.
type Msg struct {
	Kind Kind

	// Text carries the payload for KindStdout, KindStderr and KindSessionID.
	Text string

	// Patch carries the payload for KindJSONPatch (already JSON-encoded, so
	// the store never needs to know the patch's Go type).
	Patch []byte
}

// msgOverhead approximates the fixed bookkeeping cost of a stored message
// (event name, framing) so that tiny messages still count toward history
// eviction instead of being effectively free.
const msgOverhead = 8

// approxBytes estimates the footprint a message contributes to the byte
// budget. It does not need to be exact, only monotonic in payload size.
func approxBytes(m Msg) int {
	switch m.Kind {
	case KindStdout, KindStderr, KindSessionID:
		return len(m.Kind.Name()) + len(m.Text) + msgOverhead
	case KindJSONPatch:
		return len(m.Kind.Name()) + len(m.Patch) + msgOverhead
	default:
		return msgOverhead
	}
}

// HistoryBudget is the maximum total approx_bytes retained in a MsgStore's
// history before the oldest messages are evicted.
const HistoryBudget = 100 * 1024 * 1024 // 100 MiB

// subscriberBuffer bounds how many messages a lagging subscriber can be
// behind before frames are dropped for it. Producers never block on a slow
// reader.
const subscriberBuffer = 256

type storedMsg struct {
	msg   Msg
	bytes int
}

type subscriber struct {
	ch     chan Msg
	closed bool
}

// MsgStore is a single-writer, many-reader buffer for one execution. Pushes
// are serialized through mu; broadcast to live subscribers happens with the
// lock released (never holding a lock across a channel send that could
// suspend).
type MsgStore struct {
	mu         sync.Mutex
	history    []storedMsg
	totalBytes int
	subs       map[int]*subscriber
	nextSubID  int
	finished   bool
}

// New creates an empty MsgStore.
func New() *MsgStore {
	return &MsgStore{subs: make(map[int]*subscriber)}
}

// Push appends msg to history (evicting from the front until the budget is
// respected) and broadcasts it to all currently-subscribed readers. Push
// never fails: a subscriber with no room for the frame simply misses it.
func (s *MsgStore) Push(m Msg) {
	bytes := approxBytes(m)

	s.mu.Lock()
	s.history = append(s.history, storedMsg{msg: m, bytes: bytes})
	s.totalBytes += bytes
	for s.totalBytes > HistoryBudget && len(s.history) > 0 {
		s.totalBytes -= s.history[0].bytes
		s.history = s.history[1:]
	}
	if m.Kind == KindFinished {
		s.finished = true
	}
	// Snapshot the subscriber list so the broadcast loop below runs without
	// holding the lock.
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- m:
		default:
			// Lagging subscriber: drop the frame rather than block the
			// producer. Subscribers reconcile via HistoryPlusStream on
			// reconnect.
		}
	}
}

// PushStdout pushes a stdout chunk.
func (s *MsgStore) PushStdout(text string) { s.Push(Msg{Kind: KindStdout, Text: text}) }

// PushStderr pushes a stderr chunk.
func (s *MsgStore) PushStderr(text string) { s.Push(Msg{Kind: KindStderr, Text: text}) }

// PushPatch pushes an already-marshaled RFC-6902 patch.
func (s *MsgStore) PushPatch(patch []byte) { s.Push(Msg{Kind: KindJSONPatch, Patch: patch}) }

// PushSessionID pushes the agent-reported session id.
func (s *MsgStore) PushSessionID(id string) { s.Push(Msg{Kind: KindSessionID, Text: id}) }

// PushFinished pushes the terminal sentinel.
func (s *MsgStore) PushFinished() { s.Push(Msg{Kind: KindFinished}) }

// History returns a snapshot of the messages currently retained.
func (s *MsgStore) History() []Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Msg, len(s.history))
	for i, sm := range s.history {
		out[i] = sm.msg
	}
	return out
}

// subscribe registers a new live subscriber and returns its channel plus an
// unsubscribe function. Must be called with mu held by the caller? No — it
// manages its own locking so HistoryPlusStream can call it directly.
func (s *MsgStore) subscribe() (<-chan Msg, func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub := &subscriber{ch: make(chan Msg, subscriberBuffer)}
	s.subs[id] = sub
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		if existing, ok := s.subs[id]; ok && !existing.closed {
			existing.closed = true
			delete(s.subs, id)
			close(existing.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, unsub
}

// HistoryPlusStream produces a channel that first yields a snapshot of the
// current history, then switches to live messages. A subscriber joining
// after Finished still observes the full history, ending with the Finished
// it contains; no second Finished is sent (the late-subscriber replay
// described in the design notes).
//
// The returned channel is closed when ctx is cancelled or the caller invokes
// the returned cancel function, whichever comes first.
func (s *MsgStore) HistoryPlusStream(ctx context.Context) (<-chan Msg, func()) {
	// Subscribe *before* snapshotting history so no message pushed between
	// the two can be lost (it will simply be observed via the live channel,
	// and any such message is also appended to what the snapshot already
	// captured position-wise since history is append-only for the duration
	// of this call).
	live, unsub := s.subscribe()
	history := s.History()

	out := make(chan Msg)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for _, m := range history {
			select {
			case out <- m:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		for {
			select {
			case m, ok := <-live:
				if !ok {
					return
				}
				select {
				case out <- m:
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

// StdoutChunkedStream filters HistoryPlusStream down to stdout text only.
// The log normalizers in this module do not use it; they subscribe to
// HistoryPlusStream directly.
func (s *MsgStore) StdoutChunkedStream(ctx context.Context) (<-chan string, func()) {
	raw, cancel := s.HistoryPlusStream(ctx)
	out := make(chan string)
	go func() {
		defer close(out)
		for m := range raw {
			if m.Kind != KindStdout {
				continue
			}
			select {
			case out <- m.Text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel
}
