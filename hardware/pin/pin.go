// Package pin drives relay and LED outputs and reads button input over GPIO.
// Driver is selected by config, same pin API for all of them.
package pin

import (
	"io"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/log2"
)

const (
	DriverCdev   = "cdev"
	DriverGpiod  = "gpiod"
	DriverPeriph = "periph"
	DriverMock   = "mock"

	DefaultChip     = "/dev/gpiochip0"
	DefaultConsumer = "wifionoff"
)

type Output interface {
	io.Closer
	Set(on bool) error
}

type Input interface {
	io.Closer
	Pressed() (bool, error)
}

type Driver interface {
	io.Closer
	Output(pin string, activeLow bool) (Output, error)
	Input(pin string, activeLow, pullUp bool) (Input, error)
}

type Config struct {
	Driver   string
	Chip     string
	Consumer string
}

func Open(c Config, log *log2.Log) (Driver, error) {
	if c.Chip == "" {
		c.Chip = DefaultChip
	}
	if c.Consumer == "" {
		c.Consumer = DefaultConsumer
	}
	log.Debugf("pin open driver=%s chip=%s", c.Driver, c.Chip)
	switch c.Driver {
	case "", DriverCdev:
		return OpenCdev(c.Chip, c.Consumer)
	case DriverGpiod:
		return OpenGpiod(c.Chip, c.Consumer)
	case DriverPeriph:
		return OpenPeriph()
	case DriverMock:
		return NewMockDriver(), nil
	}
	return nil, errors.NotValidf("pin driver=%q", c.Driver)
}

// level applies active-low inversion between logical state and wire level.
func level(on, activeLow bool) bool { return on != activeLow }

type output struct {
	name      string
	activeLow bool
	set       func(high bool) error
	close     func() error
}

func (o *output) Set(on bool) error {
	return errors.Annotatef(o.set(level(on, o.activeLow)), "pin=%s set", o.name)
}

func (o *output) Close() error { return o.close() }

type input struct {
	name      string
	activeLow bool
	read      func() (bool, error)
	close     func() error
}

func (i *input) Pressed() (bool, error) {
	high, err := i.read()
	if err != nil {
		return false, errors.Annotatef(err, "pin=%s read", i.name)
	}
	return level(high, i.activeLow), nil
}

func (i *input) Close() error { return i.close() }

func parseOffset(pin string) (int, error) {
	n, err := strconv.ParseUint(pin, 10, 16)
	if err != nil {
		return 0, errors.NotValidf("pin=%q must be line offset number", pin)
	}
	return int(n), nil
}
