package pin

import (
	"sync"

	"github.com/juju/errors"
)

// MockDriver keeps pin levels in memory. Used by console and tests.
type MockDriver struct {
	mu      sync.Mutex
	outputs map[string]*MockOutput
	inputs  map[string]*MockInput
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		outputs: make(map[string]*MockOutput),
		inputs:  make(map[string]*MockInput),
	}
}

func (d *MockDriver) Close() error { return nil }

func (d *MockDriver) Output(pin string, activeLow bool) (Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.outputs[pin]; ok {
		return nil, errors.AlreadyExistsf("mock output pin=%s", pin)
	}
	o := &MockOutput{}
	d.outputs[pin] = o
	return o, nil
}

func (d *MockDriver) Input(pin string, activeLow, pullUp bool) (Input, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inputs[pin]; ok {
		return nil, errors.AlreadyExistsf("mock input pin=%s", pin)
	}
	i := &MockInput{}
	d.inputs[pin] = i
	return i, nil
}

func (d *MockDriver) MockOutput(pin string) *MockOutput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[pin]
}

func (d *MockDriver) MockInput(pin string) *MockInput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs[pin]
}

// MockOutput records logical states.
type MockOutput struct {
	mu      sync.Mutex
	value   bool
	history []bool
	Err     error
}

func (o *MockOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.value = on
	o.history = append(o.history, on)
	return nil
}

func (o *MockOutput) Value() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

func (o *MockOutput) History() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.history...)
}

func (o *MockOutput) Close() error { return nil }

type MockInput struct {
	mu    sync.Mutex
	value bool
	Err   error
}

func (i *MockInput) Set(pressed bool) {
	i.mu.Lock()
	i.value = pressed
	i.mu.Unlock()
}

func (i *MockInput) Pressed() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value, i.Err
}

func (i *MockInput) Close() error { return nil }
