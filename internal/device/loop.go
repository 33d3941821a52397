package device

import (
	"context"
	"time"

	"github.com/juju/errors"
)

// Loop runs Poll on fixed interval and executes posted jobs until stop or restart.
func (d *Device) Loop(ctx context.Context, stop <-chan struct{}) error {
	tmr := time.NewTicker(d.config.LoopInterval)
	defer tmr.Stop()
	d.Log.Debugf("device loop interval=%v", d.config.LoopInterval)
	for {
		select {
		case job := <-d.inbox:
			job()
		case now := <-tmr.C:
			if err := d.Poll(ctx, now); err != nil {
				return err
			}
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs f on main loop and waits for completion.
func (d *Device) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		f()
	}
	select {
	case d.inbox <- job:
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "device busy")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "device busy")
	}
}

// Post queues f without waiting. Returns false when queue is full.
func (d *Device) Post(f func()) bool {
	select {
	case d.inbox <- f:
		return true
	default:
		d.Log.Errorf("device inbox full, job dropped")
		return false
	}
}

// RunInbox executes queued jobs on caller goroutine, which must be main loop.
func (d *Device) RunInbox() int {
	n := 0
	for {
		select {
		case job := <-d.inbox:
			job()
			n++
		default:
			return n
		}
	}
}

// OnMqttCommand and OnMqttConnect are transport callbacks, called from paho goroutines.
func (d *Device) OnMqttCommand(payload []byte) {
	p := append([]byte(nil), payload...)
	d.Post(func() { d.HandleCommand(p) })
}

func (d *Device) OnMqttConnect() {
	d.Post(func() { d.tele.PublishState(d.state.RelayConnected) })
}
