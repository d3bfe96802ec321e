package eventbus

import (
	"context"
	"testing"
	"time"
)

func drain(t *testing.T, ch <-chan Patch, n int, timeout time.Duration) []Patch {
	t.Helper()
	var out []Patch
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case p, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, p)
		case <-deadline:
			t.Fatalf("timed out waiting for %d patches, got %d", n, len(out))
		}
	}
	return out
}

func TestSubscribeReplaysHistoryThenLive(t *testing.T) {
	b := New()
	b.Publish(TaskPatch(OpAdd, "t1", map[string]string{"title": "one"}))
	b.Publish(TaskPatch(OpReplace, "t1", map[string]string{"title": "two"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, stop := b.Subscribe(ctx)
	defer stop()

	got := drain(t, ch, 2, time.Second)
	if got[0].Path != "/tasks/t1" || got[1].Path != "/tasks/t1" {
		t.Fatalf("unexpected history: %+v", got)
	}

	b.Publish(ExecutionProcessPatch(OpAdd, "e1", nil))
	got = drain(t, ch, 1, time.Second)
	if got[0].Resource != ResourceExecutionProcess || got[0].Path != "/execution_processes/e1" {
		t.Fatalf("unexpected live patch: %+v", got[0])
	}
}

func TestHistoryIsBoundedByCount(t *testing.T) {
	b := New()
	for i := 0; i < historyLimit+10; i++ {
		b.Publish(TaskPatch(OpAdd, "t", nil))
	}
	b.mu.Lock()
	n := len(b.history)
	b.mu.Unlock()
	if n != historyLimit {
		t.Fatalf("expected history capped at %d, got %d", historyLimit, n)
	}
}

func TestDraftPathsEscapeAttemptID(t *testing.T) {
	p := DraftFollowUpPatch("a/b~c", map[string]string{"prompt": "go"})
	if p.Path != "/drafts/a~1b~0c/follow_up" {
		t.Fatalf("expected RFC-6901 escaped path, got %q", p.Path)
	}
	r := DraftRetryPatch("plain", nil)
	if r.Path != "/drafts/plain/retry" || r.Value != nil {
		t.Fatalf("unexpected retry clear patch: %+v", r)
	}
}

func TestNonBlockingPublishDropsFramesForLaggingSubscriber(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, stop := b.Subscribe(ctx)
	defer stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(TaskPatch(OpAdd, "t", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
}
