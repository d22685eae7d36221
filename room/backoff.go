package room

import (
	"math/rand"
	"time"
)

// backoffSchedule is the fixed exponential-with-jitter delay ladder from
// spec.md §4.1: 250ms, 500ms, 1s, 2s, 5s, capped at 10s. Unlike the
// teacher's multiplicative jitter.go (agent/internal/connection/manager.go
// nextBackoff/jitter), the spec pins concrete rungs rather than a growth
// factor, so the ladder is a literal table walked by index instead of
// computed — capped at the last entry once exhausted.
var backoffSchedule = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// backoff walks backoffSchedule and applies ±20% jitter, matching the
// teacher's jitterFraction.
type backoff struct {
	step int
}

// next returns the delay for the current step and advances it, capping at
// the schedule's last rung.
func (b *backoff) next() time.Duration {
	idx := b.step
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	} else {
		b.step++
	}
	return jitter(backoffSchedule[idx])
}

// reset returns the backoff to its first rung, called on any successful
// Open per spec.md §4.1.
func (b *backoff) reset() {
	b.step = 0
}

func jitter(d time.Duration) time.Duration {
	const jitterFraction = 0.2
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
