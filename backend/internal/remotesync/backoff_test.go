package remotesync

import "testing"

func TestBackoffDoublesAndCapsAtMax(t *testing.T) {
	b := newBackoff()
	var got []int64
	for i := 0; i < 10; i++ {
		got = append(got, int64(b.next()))
	}
	if got[0] != int64(baseBackoff) {
		t.Fatalf("expected first delay %v, got %v", baseBackoff, got[0])
	}
	for _, d := range got {
		if d > int64(maxBackoff) {
			t.Fatalf("delay %v exceeds max %v", d, maxBackoff)
		}
	}
	if got[len(got)-1] != int64(maxBackoff) {
		t.Fatalf("expected the sequence to saturate at max, got %v", got)
	}
}

func TestBackoffResetReturnsToBase(t *testing.T) {
	b := newBackoff()
	b.next()
	b.next()
	b.reset()
	if b.next() != baseBackoff {
		t.Fatalf("expected reset to restore base delay, got %v", b.current)
	}
}
