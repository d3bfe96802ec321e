package remotesync

import "time"

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// backoff produces a doubling delay sequence bounded at maxBackoff; reset
// restores baseBackoff. Client.Run calls reset only when a replay-and-feed
// cycle returns without error, which feed never does, so a connection that
// later drops does not reset the delay.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: baseBackoff}
}

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > maxBackoff {
		b.current = maxBackoff
	}
	return d
}

func (b *backoff) reset() {
	b.current = baseBackoff
}
