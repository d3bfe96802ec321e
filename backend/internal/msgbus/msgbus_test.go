package msgbus

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func drain(t *testing.T, ch <-chan Msg, n int, timeout time.Duration) []Msg {
	t.Helper()
	var out []Msg
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case m, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, m)
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(out))
		}
	}
	return out
}

func TestHistoryThenLive(t *testing.T) {
	s := New()
	s.PushStdout("a")
	s.PushStdout("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, stop := s.HistoryPlusStream(ctx)
	defer stop()

	got := drain(t, ch, 2, time.Second)
	if got[0].Text != "a" || got[1].Text != "b" {
		t.Fatalf("unexpected history order: %+v", got)
	}

	s.PushStdout("c")
	got = drain(t, ch, 1, time.Second)
	if got[0].Text != "c" {
		t.Fatalf("expected live message c, got %+v", got[0])
	}
}

func TestLateSubscriberSeesFullHistoryThenFinished(t *testing.T) {
	s := New()
	s.PushStdout("x")
	s.PushFinished()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, stop := s.HistoryPlusStream(ctx)
	defer stop()

	got := drain(t, ch, 2, time.Second)
	if got[0].Kind != KindStdout || got[1].Kind != KindFinished {
		t.Fatalf("unexpected sequence: %+v", got)
	}
}

func TestByteBudgetEviction(t *testing.T) {
	s := New()
	// Push enough 1 KiB messages to exceed the 100 MiB budget, then verify
	// the oldest are gone (FIFO eviction) and the budget is respected.
	chunk := strings.Repeat("x", 1024)
	n := (HistoryBudget / (1024 + len(KindStdout.Name()) + msgOverhead)) + 1000
	for i := 0; i < n; i++ {
		// Number each chunk (same 1 KiB length) so eviction order is visible.
		s.PushStdout(fmt.Sprintf("%08d", i) + chunk[8:])
	}
	s.mu.Lock()
	total := s.totalBytes
	kept := len(s.history)
	first := s.history[0].msg.Text
	s.mu.Unlock()
	if total > HistoryBudget {
		t.Fatalf("total bytes %d exceeds budget %d", total, HistoryBudget)
	}
	if kept >= n {
		t.Fatalf("expected the oldest messages evicted, kept %d of %d", kept, n)
	}
	if want := fmt.Sprintf("%08d", n-kept); !strings.HasPrefix(first, want) {
		t.Fatalf("expected oldest retained message %s, got %.8s", want, first)
	}
}

func TestNonBlockingBroadcastDropsFrames(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, stop := s.HistoryPlusStream(ctx)
	defer stop()

	// Push far more than the subscriber buffer without ever draining; this
	// must not deadlock the producer.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			s.PushStdout("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a lagging subscriber")
	}
}
