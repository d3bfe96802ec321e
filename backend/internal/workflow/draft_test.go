package workflow

import (
	"sync"
	"testing"
)

func TestTryMarkSendingRequiresQueuedAndNonEmptyPrompt(t *testing.T) {
	d := NewDraft("a1", DraftFollowUp)
	if d.TryMarkSending() {
		t.Fatal("expected false: not queued")
	}
	d.Set("   ", nil, "")
	if d.TryMarkSending() {
		t.Fatal("expected false: blank prompt")
	}
	d.Set("run the tests", nil, "")
	if !d.TryMarkSending() {
		t.Fatal("expected true: eligible draft")
	}
	if !d.Snapshot().Sending {
		t.Fatal("expected sending=true after TryMarkSending succeeds")
	}
}

// TestConcurrentTryMarkSendingHasExactlyOneWinner fires two callers at the
// same eligible draft at once; exactly one must observe true, and the
// draft afterwards is sending=true with its version incremented once.
func TestConcurrentTryMarkSendingHasExactlyOneWinner(t *testing.T) {
	d := NewDraft("attemptA", DraftFollowUp)
	d.Set("run", nil, "")

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.TryMarkSending()
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	snap := d.Snapshot()
	if !snap.Sending || snap.Version != 1 {
		t.Fatalf("expected sending=true version=1, got %+v", snap)
	}
}

func TestCompleteSendClearsDraft(t *testing.T) {
	d := NewDraft("a1", DraftRetry)
	d.Set("retry it", []string{"img1"}, "")
	d.TryMarkSending()
	d.CompleteSend()
	snap := d.Snapshot()
	if snap.Queued || snap.Sending || snap.Prompt != "" || snap.ImageIDs != nil {
		t.Fatalf("expected draft fully cleared, got %+v", snap)
	}
}

func TestFailSendPreservesPromptButClearsSending(t *testing.T) {
	d := NewDraft("a1", DraftFollowUp)
	d.Set("keep me", nil, "")
	d.TryMarkSending()
	d.FailSend()
	snap := d.Snapshot()
	if snap.Sending {
		t.Fatal("expected sending cleared after FailSend")
	}
	if !snap.Queued || snap.Prompt != "keep me" {
		t.Fatalf("expected prompt preserved for retry, got %+v", snap)
	}
	if !d.TryMarkSending() {
		t.Fatal("expected the preserved draft to remain eligible to send again")
	}
}
