package device

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/internal/button"
)

type Request uint32

const (
	RequestPairing Request = 1 << iota
	RequestForgetNetwork
	RequestFactoryReset
)

func (r Request) String() string {
	switch r {
	case RequestPairing:
		return "pairing"
	case RequestForgetNetwork:
		return "forget_network"
	case RequestFactoryReset:
		return "factory_reset"
	}
	return "Request(?)"
}

var _ button.Sink = &Device{}

// MenuSelected is called from tick goroutine, schedules tier index+1 blinks.
func (d *Device) MenuSelected(index int, tier button.Tier) {
	d.Log.Debugf("button menu tier=%d %s", index, tier.String())
	atomic.StoreInt32(&d.feedback, int32(index+1))
}

// Gesture is called from tick goroutine. Actions are deferred to main loop.
func (d *Device) Gesture(g button.Gesture, held time.Duration) {
	d.Log.Infof("button gesture=%s held=%v", g.String(), held)
	switch g {
	case button.GestureShortPress:
		atomic.AddInt32(&d.toggles, 1)
	case button.GesturePairing:
		d.Request(RequestPairing)
	case button.GestureForgetNetwork:
		d.Request(RequestForgetNetwork)
	case button.GestureFactoryReset:
		d.Request(RequestFactoryReset)
	}
}

// Request sets deferred action flag. Once set it cannot be cancelled.
func (d *Device) Request(r Request) {
	for {
		old := atomic.LoadUint32(&d.requests)
		if atomic.CompareAndSwapUint32(&d.requests, old, old|uint32(r)) {
			return
		}
	}
}

func (d *Device) requested(r Request) bool {
	return atomic.LoadUint32(&d.requests)&uint32(r) != 0
}

func (d *Device) clearRequest(r Request) {
	for {
		old := atomic.LoadUint32(&d.requests)
		if atomic.CompareAndSwapUint32(&d.requests, old, old&^uint32(r)) {
			return
		}
	}
}

// Poll is one main loop iteration. Returns ErrRestart when restart is required.
func (d *Device) Poll(ctx context.Context, now time.Time) error {
	d.stepFeedback(now)

	for n := atomic.SwapInt32(&d.toggles, 0); n > 0; n-- {
		d.ToggleRelay()
	}

	// check, perform, clear
	for _, r := range []Request{RequestPairing, RequestForgetNetwork, RequestFactoryReset} {
		if !d.requested(r) {
			continue
		}
		if err := d.perform(ctx, r); err != nil {
			d.Log.Error(errors.Annotatef(err, "request=%s", r.String()))
		}
		d.clearRequest(r)
	}

	if now.Sub(d.lastNetCheck) >= d.config.NetworkCheckInterval {
		d.refreshNetwork(ctx, now)
	}

	if d.state.MqttConfigured && !d.tele.Pending() {
		if d.tele.Connected() {
			d.backoff.Reset()
		} else if d.backoff.Ready(now) && d.tele.Connect() {
			d.backoff.Failure(now)
			d.Log.Debugf("mqtt connect server=%q next attempt in %v", d.state.MqttServer, d.backoff.Remaining(now))
		}
	}

	if d.restart {
		return ErrRestart
	}
	return nil
}

func (d *Device) perform(ctx context.Context, r Request) error {
	switch r {
	case RequestPairing:
		return d.EnterPairing(ctx)
	case RequestForgetNetwork:
		return d.ForgetNetwork(ctx)
	case RequestFactoryReset:
		return d.PerformFactoryReset(ctx)
	}
	return errors.Errorf("code error unknown request=%d", r)
}

// blinkState counts LED transitions left; last one restores LED to relay state.
type blinkState struct {
	left int
	next time.Time
}

func (b blinkState) active() bool { return b.left > 0 }

func (d *Device) stepFeedback(now time.Time) {
	if n := atomic.SwapInt32(&d.feedback, 0); n > 0 {
		d.blink = blinkState{left: 2*int(n) + 1, next: now}
	}
	if !d.blink.active() || now.Before(d.blink.next) {
		return
	}
	d.blink.left--
	d.blink.next = now.Add(d.config.BlinkPeriod)
	if d.blink.left == 0 {
		d.setLED(d.state.RelayConnected)
		return
	}
	d.setLED(d.blink.left%2 == 0)
}
