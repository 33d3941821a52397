package helpers

import "time"

// Limited exponential backoff for retry delays.
// Caller passes current time, so main loop can drive it with own clock.
// First attempt is never delayed.
// Failure() multiplies next delay by K, K<=1 keeps delay constant at Min.
// Not safe for concurrent use.
type Backoff struct {
	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms

	next time.Duration
	last time.Time
}

// Use scenario:
//
//	if backoff.Ready(now) {
//	  backoff.Failure(now) // attempt counts as failure until proven otherwise
//	  start()
//	}
//	...
//	if success { backoff.Reset() }
func (b *Backoff) Ready(now time.Time) bool {
	if b.last.IsZero() {
		return true
	}
	return now.Sub(b.last) >= b.next
}

// Delay is pause required after last failure.
func (b *Backoff) Delay() time.Duration { return b.next }

// Remaining until Ready, zero if ready now.
func (b *Backoff) Remaining(now time.Time) time.Duration {
	if b.Ready(now) {
		return 0
	}
	return b.round(b.next - now.Sub(b.last))
}

// Failure records attempt at `now` and increases next delay.
func (b *Backoff) Failure(now time.Time) {
	if b.last.IsZero() || b.next == 0 {
		b.next = b.limit(b.Min)
	} else if b.K > 1 {
		b.next = b.limit(time.Duration(float32(b.next) * b.K))
	}
	b.last = now
}

func (b *Backoff) Reset() {
	b.last = time.Time{}
	b.next = 0
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
