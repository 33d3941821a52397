package pin

import (
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

type cdevDriver struct {
	chip     gpio.Chiper
	consumer string
}

func OpenCdev(path, consumer string) (Driver, error) {
	chip, err := gpio.Open(path, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", path)
	}
	return NewCdev(chip, consumer), nil
}

// NewCdev wraps opened chip, tests pass gpio_mock.MockChip.
func NewCdev(chip gpio.Chiper, consumer string) Driver {
	return &cdevDriver{chip: chip, consumer: consumer}
}

func (d *cdevDriver) Close() error { return d.chip.Close() }

func (d *cdevDriver) Output(pin string, activeLow bool) (Output, error) {
	n, err := parseOffset(pin)
	if err != nil {
		return nil, err
	}
	lines, err := d.chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, d.consumer, uint32(n))
	if err != nil {
		return nil, errors.Annotatef(err, "gpio output line=%d", n)
	}
	setFunc := lines.SetFunc(uint32(n))
	return &output{
		name:      pin,
		activeLow: activeLow,
		set: func(high bool) error {
			var b byte
			if high {
				b = 1
			}
			setFunc(b)
			return lines.Flush()
		},
		close: lines.Close,
	}, nil
}

func (d *cdevDriver) Input(pin string, activeLow, pullUp bool) (Input, error) {
	n, err := parseOffset(pin)
	if err != nil {
		return nil, err
	}
	// v1 handle request has no bias flags, pull-up is board business
	lines, err := d.chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, d.consumer, uint32(n))
	if err != nil {
		return nil, errors.Annotatef(err, "gpio input line=%d", n)
	}
	return &input{
		name:      pin,
		activeLow: activeLow,
		read: func() (bool, error) {
			data, err := lines.Read()
			if err != nil {
				return false, err
			}
			return data.Values[0] != 0, nil
		},
		close: lines.Close,
	}, nil
}
