package state

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/hardware/input"
	"github.com/temoto/wifionoff/hardware/pin"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/internal/button"
)

type hardware struct {
	pins struct {
		once
		driver pin.Driver
	}
	relay struct {
		once
		out pin.Output
	}
	led struct {
		once
		out pin.Output
	}
	button struct {
		once
		sampler button.Sampler
		// set when button_source=input, needs own goroutine
		source *input.ButtonSource
	}
}

func (g *Global) Pins() (pin.Driver, error) {
	x := &g.Hardware.pins // short alias
	_ = x.do(func() error {
		c := g.Config.Hardware
		x.driver, x.err = pin.Open(pin.Config{Driver: c.Driver, Chip: c.Chip}, g.Log)
		return errors.Annotate(x.err, "hardware pins")
	})
	return x.driver, x.err
}

// MockPins is non-nil with driver=mock, for console and tests.
func (g *Global) MockPins() *pin.MockDriver {
	d, err := g.Pins()
	if err != nil {
		return nil
	}
	m, _ := d.(*pin.MockDriver)
	return m
}

func (g *Global) Relay() (pin.Output, error) {
	x := &g.Hardware.relay // short alias
	_ = x.do(func() error {
		c := g.Config.Hardware
		if c.RelayPin == "" {
			x.err = errors.NotValidf("config: hardware.relay_pin empty")
			return x.err
		}
		d, err := g.Pins()
		if err != nil {
			x.err = err
			return err
		}
		x.out, x.err = d.Output(c.RelayPin, c.RelayActiveLow)
		x.err = errors.Annotatef(x.err, "relay pin=%s", c.RelayPin)
		return x.err
	})
	return x.out, x.err
}

// LED is optional, nil output without led_pin.
func (g *Global) LED() (pin.Output, error) {
	x := &g.Hardware.led // short alias
	_ = x.do(func() error {
		c := g.Config.Hardware
		if c.LedPin == "" {
			g.Log.Debugf("config: hardware.led_pin empty, no LED feedback")
			return nil
		}
		d, err := g.Pins()
		if err != nil {
			x.err = err
			return err
		}
		x.out, x.err = d.Output(c.LedPin, c.LedActiveLow)
		x.err = errors.Annotatef(x.err, "led pin=%s", c.LedPin)
		return x.err
	})
	return x.out, x.err
}

func (g *Global) ButtonSampler() (button.Sampler, error) {
	x := &g.Hardware.button // short alias
	_ = x.do(func() error {
		c := g.Config.Hardware
		switch c.ButtonSource {
		case ButtonSourceInput:
			x.source, x.err = input.OpenButtonSource(c.InputDevice, uint16(c.InputKey), g.Log)
			if x.err == nil {
				x.sampler = x.source
			}
			return x.err

		default:
			if c.ButtonPin == "" {
				x.err = errors.NotValidf("config: hardware.button_pin empty")
				return x.err
			}
			d, err := g.Pins()
			if err != nil {
				x.err = err
				return err
			}
			var in pin.Input
			in, x.err = d.Input(c.ButtonPin, c.ButtonActiveLow, c.ButtonPullUp)
			x.err = errors.Annotatef(x.err, "button pin=%s", c.ButtonPin)
			x.sampler = in
			return x.err
		}
	})
	return x.sampler, x.err
}

func (g *Global) closeHardware() error {
	h := &g.Hardware
	errs := make([]error, 0, 4)
	closeIf := func(done bool, c io.Closer) {
		if done && c != nil {
			errs = append(errs, c.Close())
		}
	}
	closeIf(h.relay.done(), h.relay.out)
	closeIf(h.led.done(), h.led.out)
	if h.button.done() && h.button.sampler != nil {
		if c, ok := h.button.sampler.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	closeIf(h.pins.done(), h.pins.driver)
	return helpers.FoldErrors(errs)
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
