package button

import (
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/wifionoff/log2"
)

const DefaultTick = 100 * time.Millisecond

type Sampler interface {
	Pressed() (bool, error)
}

// Runner samples input on fixed tick and feeds Detector.
type Runner struct {
	Detector *Detector
	Sampler  Sampler
	Log      *log2.Log
	Tick     time.Duration

	lastActive bool
}

// Step is one tick. On sample error previous input state is kept.
func (r *Runner) Step(now time.Time) {
	active, err := r.Sampler.Pressed()
	if err != nil {
		r.Log.Errorf("button sample err=%v", err)
		active = r.lastActive
	}
	r.lastActive = active
	r.Detector.Tick(now, active)
}

// Run ticks until a stops. Caller must a.Add(1) before.
func (r *Runner) Run(a *alive.Alive) {
	defer a.Done()
	tick := r.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	tmr := time.NewTicker(tick)
	defer tmr.Stop()
	stopch := a.StopChan()
	r.Log.Debugf("button runner tick=%v", tick)
	for {
		select {
		case now := <-tmr.C:
			r.Step(now)
		case <-stopch:
			return
		}
	}
}
