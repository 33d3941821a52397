package pin

import (
	"github.com/juju/errors"
	pgpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// periphDriver addresses pins by board name, e.g. GPIO17.
type periphDriver struct{}

func OpenPeriph() (Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	return periphDriver{}, nil
}

func (periphDriver) Close() error { return nil }

func (periphDriver) Output(pin string, activeLow bool) (Output, error) {
	p := gpioreg.ByName(pin)
	if p == nil {
		return nil, errors.NotFoundf("periph pin=%s", pin)
	}
	if err := p.Out(pgpio.Level(level(false, activeLow))); err != nil {
		return nil, errors.Annotatef(err, "periph output pin=%s", pin)
	}
	return &output{
		name:      pin,
		activeLow: activeLow,
		set:       func(high bool) error { return p.Out(pgpio.Level(high)) },
		close:     p.Halt,
	}, nil
}

func (periphDriver) Input(pin string, activeLow, pullUp bool) (Input, error) {
	p := gpioreg.ByName(pin)
	if p == nil {
		return nil, errors.NotFoundf("periph pin=%s", pin)
	}
	pull := pgpio.Float
	if pullUp {
		pull = pgpio.PullUp
	}
	if err := p.In(pull, pgpio.NoEdge); err != nil {
		return nil, errors.Annotatef(err, "periph input pin=%s", pin)
	}
	return &input{
		name:      pin,
		activeLow: activeLow,
		read:      func() (bool, error) { return p.Read() == pgpio.High, nil },
		close:     p.Halt,
	}, nil
}
