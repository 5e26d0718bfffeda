package stream

import (
	"math/rand"
	"time"
)

// backoff produces exponentially growing reconnect delays with jitter.
// Retry count is unbounded; the subscriber keeps trying until stopped.
//
// Not safe for concurrent use; the subscriber's run loop is the only caller.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// newBackoff creates a backoff growing from initial to max, doubling per
// attempt.
func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max}
}

// Next returns the delay before the next attempt. The returned value is
// jittered within [base/2, base] to avoid synchronized reconnect storms.
func (b *backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}

	half := b.current / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Reset restarts the progression after a successful connection.
func (b *backoff) Reset() {
	b.current = 0
}
