package transport

import (
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with jitter for reconnection.
// The pre-jitter delay for attempt n is min(base × 2ⁿ, max); the actual
// wait adds delay × factor × uniform(0,1) on top.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	attempts int
	random   func() float64
}

// NewBackoff creates a backoff policy.
func NewBackoff(base, max time.Duration, factor float64) *Backoff {
	return &Backoff{
		Base:   base,
		Max:    max,
		Factor: factor,
		random: rand.Float64,
	}
}

// Delay returns the pre-jitter delay for a given attempt count.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := b.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max || delay <= 0 {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Next returns the wait before the next attempt and increments the attempt
// counter. One failed or closed cycle maps to exactly one Next call.
func (b *Backoff) Next() time.Duration {
	delay := b.Delay(b.attempts)
	jitter := time.Duration(float64(delay) * b.Factor * b.random())
	b.attempts++
	return delay + jitter
}

// Attempts returns how many waits have been handed out since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset zeroes the attempt counter. Called on every successful channel open.
func (b *Backoff) Reset() {
	b.attempts = 0
}
