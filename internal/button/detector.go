package button

import (
	"sync/atomic"
	"time"
)

// Sink receives detector output. Called from tick goroutine, must not block.
type Sink interface {
	// MenuSelected is advisory feedback, once per threshold crossing while pressed.
	MenuSelected(index int, tier Tier)
	// Gesture is emitted exactly once per press/release cycle.
	Gesture(g Gesture, held time.Duration)
}

type Snapshot struct {
	Pressed bool
	HeldFor time.Duration
	// longest tier hold crossed during current press
	Reached time.Duration
}

// Detector is press/release state machine driven by Tick.
// Tick must be called from single goroutine, Snapshot from any.
type Detector struct {
	profile Profile
	sink    Sink
	// press start is kept as offset from epoch, time.Time.Sub uses monotonic reading
	epoch      time.Time
	pressed    uint32
	pressStart int64 // time.Duration since epoch
	reached    int64 // time.Duration
}

func NewDetector(p Profile, sink Sink) *Detector {
	return &Detector{profile: p.clone(), sink: sink, epoch: time.Now()}
}

func (d *Detector) Profile() Profile { return d.profile.clone() }

func (d *Detector) Tick(now time.Time, active bool) {
	wasPressed := atomic.LoadUint32(&d.pressed) != 0
	switch {
	case active && !wasPressed:
		atomic.StoreInt64(&d.pressStart, int64(now.Sub(d.epoch)))
		atomic.StoreInt64(&d.reached, 0)
		atomic.StoreUint32(&d.pressed, 1)

	case active && wasPressed:
		held := d.heldAt(now)
		reached := time.Duration(atomic.LoadInt64(&d.reached))
		for i, t := range d.profile.Tiers {
			if held > t.Hold && reached < t.Hold {
				reached = t.Hold
				atomic.StoreInt64(&d.reached, int64(reached))
				d.sink.MenuSelected(i, t)
			}
		}

	case !active && wasPressed:
		held := d.heldAt(now)
		g := d.profile.Classify(held)
		atomic.StoreUint32(&d.pressed, 0)
		atomic.StoreInt64(&d.reached, 0)
		d.sink.Gesture(g, held)
	}
}

func (d *Detector) Snapshot(now time.Time) Snapshot {
	if atomic.LoadUint32(&d.pressed) == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Pressed: true,
		HeldFor: d.heldAt(now),
		Reached: time.Duration(atomic.LoadInt64(&d.reached)),
	}
}

// Ticks without monotonic reading fall back to wall clock, which may step backwards.
func (d *Detector) heldAt(now time.Time) time.Duration {
	held := now.Sub(d.epoch) - time.Duration(atomic.LoadInt64(&d.pressStart))
	if held < 0 {
		return 0
	}
	return held
}
