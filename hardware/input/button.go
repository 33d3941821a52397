// Package input reads button state from Linux input subsystem.
package input

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/inputevent-go"
	"github.com/temoto/wifionoff/log2"
)

const DevInputEventTag = "dev-input-event"

// linux/input-event-codes.h
const evKey = 0x01

// ButtonSource follows one key of /dev/input/eventN.
// Events are read in background, Pressed returns latest known state.
type ButtonSource struct {
	Log  *log2.Log
	key  uint16
	r    io.ReadCloser
	once sync.Once

	pressed uint32
	err     atomic.Value // error
}

func OpenButtonSource(device string, key uint16, log *log2.Log) (*ButtonSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "%s open", DevInputEventTag)
	}
	return NewButtonSource(f, key, log), nil
}

func NewButtonSource(r io.ReadCloser, key uint16, log *log2.Log) *ButtonSource {
	return &ButtonSource{Log: log, key: key, r: r}
}

func (s *ButtonSource) String() string { return DevInputEventTag }

func (s *ButtonSource) Pressed() (bool, error) {
	if err, ok := s.err.Load().(error); ok && err != nil {
		return false, err
	}
	return atomic.LoadUint32(&s.pressed) != 0, nil
}

// Run reads events until a stops or read fails. Caller must a.Add(1) before.
func (s *ButtonSource) Run(a *alive.Alive) {
	defer a.Done()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-a.StopChan():
			_ = s.Close()
		case <-done:
		}
	}()

	for {
		ie, err := inputevent.ReadOne(s.r)
		if err != nil {
			if a.IsRunning() {
				err = errors.Annotate(err, DevInputEventTag)
				s.Log.Error(err)
				s.err.Store(err)
			}
			return
		}
		s.handle(ie)
	}
}

func (s *ButtonSource) handle(ie inputevent.InputEvent) {
	if ie.Type != evKey || ie.Code != s.key {
		return
	}
	var v uint32
	if inputevent.KeyEventState(ie.Value) != inputevent.KeyStateUp {
		v = 1
	}
	s.Log.Debugf("%s key=%d value=%d", DevInputEventTag, ie.Code, ie.Value)
	atomic.StoreUint32(&s.pressed, v)
}

func (s *ButtonSource) Close() error {
	var err error
	s.once.Do(func() { err = s.r.Close() })
	return err
}
