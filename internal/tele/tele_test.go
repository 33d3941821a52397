package tele

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wifionoff/log2"
)

func TestNames(t *testing.T) {
	t.Parallel()
	id := ClientID("wifionoff", "a0b1c2d3e4f5")
	assert.Equal(t, "wifionoff_a0b1c2d3e4f5", id)
	assert.Equal(t, Topics{
		Get: "wifionoff/wifionoff_a0b1c2d3e4f5/get",
		Set: "wifionoff/wifionoff_a0b1c2d3e4f5/set",
	}, NewTopics(id))
}

func TestPayload(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1", PayloadDigit.Format(true))
	assert.Equal(t, "0", PayloadDigit.Format(false))
	assert.Equal(t, "on", PayloadWord.Format(true))
	assert.Equal(t, "off", PayloadWord.Format(false))

	p, err := ParsePayloadStyle("")
	require.NoError(t, err)
	assert.Equal(t, PayloadDigit, p)
	_, err = ParsePayloadStyle("yes")
	assert.True(t, errors.IsNotValid(err))

	cases := []struct {
		in     string
		on, ok bool
	}{
		{"1", true, true},
		{"on", true, true},
		{"0", false, true},
		{"off", false, true},
		{"off\n", false, true},
		{"ON", false, false},
		{"toggle", false, false},
		{"", false, false},
	}
	for _, c := range cases {
		on, ok := ParseCommand([]byte(c.in))
		assert.Equal(t, c.ok, ok, "in=%q", c.in)
		assert.Equal(t, c.on, on, "in=%q", c.in)
	}
}

func TestBrokerURL(t *testing.T) {
	t.Parallel()
	cases := []struct{ server, expect string }{
		{"broker.lan", "tcp://broker.lan:1883"},
		{"10.0.0.2", "tcp://10.0.0.2:1883"},
		{"10.0.0.2:1884", "tcp://10.0.0.2:1884"},
		{"broker.lan:", "tcp://broker.lan:1883"},
		{"[fd00::1]", "tcp://[fd00::1]:1883"},
		{"[fd00::1]:8883", "tcp://[fd00::1]:8883"},
		{"fd00::1", "tcp://[fd00::1]:1883"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, BrokerURL(c.server, 0), "server=%s", c.server)
	}
	assert.Equal(t, "tcp://h:2000", BrokerURL("h", 2000))
}

type recorder struct {
	mu       sync.Mutex
	commands []string
	connects int
}

func (r *recorder) onCommand(p []byte) {
	r.mu.Lock()
	r.commands = append(r.commands, string(p))
	r.mu.Unlock()
}
func (r *recorder) onConnect() {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func newTestTransport(t testing.TB, payload PayloadStyle) (*Transport, *MqttMock, *recorder) {
	rec := &recorder{}
	tr := NewTransport(Config{ClientID: "plug_0001", Payload: payload}, log2.NewTest(t, log2.LDebug), rec.onCommand, rec.onConnect)
	mock := NewMqttMock()
	tr.SetClientFactory(mock.Factory)
	return tr, mock, rec
}

func TestTransportOptions(t *testing.T) {
	tr, mock, _ := newTestTransport(t, PayloadDigit)
	assert.False(t, tr.Configured())
	tr.Configure("[fd00::1]")
	require.True(t, tr.Configured())
	opt := mock.Opt
	require.NotNil(t, opt)
	require.Len(t, opt.Servers, 1)
	assert.Equal(t, "tcp://[fd00::1]:1883", opt.Servers[0].String())
	assert.Equal(t, "plug_0001", opt.ClientID)
	assert.True(t, opt.WillEnabled)
	assert.Equal(t, "wifionoff/plug_0001/get", opt.WillTopic)
	assert.Equal(t, []byte(WillPayload), opt.WillPayload)
	assert.Equal(t, byte(1), opt.WillQos)
	assert.True(t, opt.WillRetained)
	assert.False(t, opt.AutoReconnect)
	assert.Equal(t, int64(60), opt.KeepAlive)
}

func TestTransportNotConnected(t *testing.T) {
	tr, mock, _ := newTestTransport(t, PayloadDigit)
	assert.False(t, tr.PublishState(true))
	assert.False(t, tr.Connect(), "unconfigured")

	tr.Configure("broker")
	assert.False(t, tr.PublishState(true))
	assert.Nil(t, mock.Published())
}

func TestTransportConnectLifecycle(t *testing.T) {
	tr, mock, rec := newTestTransport(t, PayloadWord)
	mock.Hold = true
	tr.Configure("broker")

	require.True(t, tr.Connect())
	assert.True(t, tr.Pending())
	assert.False(t, tr.Connect(), "attempt in flight")
	assert.Equal(t, 1, mock.Connects())

	mock.Finish()
	assert.False(t, tr.Pending())
	assert.True(t, tr.Connected())
	assert.False(t, tr.Connect(), "already connected")
	assert.Equal(t, 1, rec.connects)

	assert.True(t, tr.PublishState(true))
	assert.True(t, tr.PublishState(true))
	pub := mock.Published()
	require.Len(t, pub, 2)
	assert.Equal(t, "wifionoff/plug_0001/get", pub[0].T)
	assert.Equal(t, "on", string(pub[0].P))
	assert.True(t, pub[0].R)

	mock.TestPublish(t, "wifionoff/plug_0001/set", []byte("off"))
	assert.Equal(t, []string{"off"}, rec.commands)

	mock.Drop(errors.New("broker gone"))
	assert.False(t, tr.Connected())
	assert.True(t, tr.Connect())
}

func TestTransportConnectError(t *testing.T) {
	tr, mock, rec := newTestTransport(t, PayloadDigit)
	mock.Hold = true
	mock.ConnectErr = errors.New("connection refused")
	tr.Configure("broker")

	for i := 1; i <= 3; i++ {
		require.True(t, tr.Connect(), "retry once per iteration")
		mock.Finish()
		assert.False(t, tr.Pending())
		assert.False(t, tr.Connected())
		assert.Equal(t, i, mock.Connects())
	}
	assert.Equal(t, 0, rec.connects)
}

func TestTransportReconfigure(t *testing.T) {
	tr, mock, _ := newTestTransport(t, PayloadDigit)
	mock.Hold = true
	tr.Configure("one")
	require.True(t, tr.Connect())
	mock.Finish()
	require.True(t, tr.Connected())

	tr.Configure("two:1999")
	assert.Equal(t, "two:1999", tr.Server())
	assert.False(t, tr.Connected())
	assert.Equal(t, "tcp://two:1999", mock.Opt.Servers[0].String())

	tr.Configure("")
	assert.False(t, tr.Configured())
	assert.False(t, tr.Connect())
}

func TestMockAsyncConnect(t *testing.T) {
	tr, _, rec := newTestTransport(t, PayloadDigit)
	tr.Configure("broker")
	require.True(t, tr.Connect())
	deadline := time.Now().Add(time.Second)
	for tr.Pending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, tr.Connected())
	rec.mu.Lock()
	assert.Equal(t, 1, rec.connects)
	rec.mu.Unlock()
}
