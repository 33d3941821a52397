package pin

import (
	"github.com/juju/errors"
	gpiod "github.com/warthog618/go-gpiocdev"
)

type gpiodDriver struct {
	chip *gpiod.Chip
}

// OpenGpiod uses chardev v2 uAPI, supports input bias.
func OpenGpiod(name, consumer string) (Driver, error) {
	chip, err := gpiod.NewChip(name, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Annotatef(err, "gpiod open chip=%s", name)
	}
	return &gpiodDriver{chip: chip}, nil
}

func (d *gpiodDriver) Close() error { return d.chip.Close() }

func (d *gpiodDriver) Output(pin string, activeLow bool) (Output, error) {
	n, err := parseOffset(pin)
	if err != nil {
		return nil, err
	}
	line, err := d.chip.RequestLine(n, gpiod.AsOutput(boolInt(level(false, activeLow))))
	if err != nil {
		return nil, errors.Annotatef(err, "gpiod output line=%d", n)
	}
	return &output{
		name:      pin,
		activeLow: activeLow,
		set:       func(high bool) error { return line.SetValue(boolInt(high)) },
		close:     line.Close,
	}, nil
}

func (d *gpiodDriver) Input(pin string, activeLow, pullUp bool) (Input, error) {
	n, err := parseOffset(pin)
	if err != nil {
		return nil, err
	}
	opts := []gpiod.LineReqOption{gpiod.AsInput}
	if pullUp {
		opts = append(opts, gpiod.WithPullUp)
	}
	line, err := d.chip.RequestLine(n, opts...)
	if err != nil {
		return nil, errors.Annotatef(err, "gpiod input line=%d", n)
	}
	return &input{
		name:      pin,
		activeLow: activeLow,
		read: func() (bool, error) {
			v, err := line.Value()
			return v != 0, err
		},
		close: line.Close,
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
