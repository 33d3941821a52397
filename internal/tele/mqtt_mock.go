package tele

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MqttMock implements mqtt.Client in memory. Install with Transport.SetClientFactory(mock.Factory).
type MqttMock struct {
	mu        sync.Mutex
	Opt       *mqtt.ClientOptions
	connected bool
	// next Connect result, nil means success
	ConnectErr error
	// Connect token stays unfinished until Finish
	Hold     bool
	held     *mockToken
	connects int
	pub      []MockMsg
	subs     []MockSub
}

type MockSub struct {
	Pattern string
	Qos     byte
	Handler mqtt.MessageHandler
}

func NewMqttMock() *MqttMock {
	return &MqttMock{subs: make([]MockSub, 0, 4)}
}

func (self *MqttMock) Factory(opt *mqtt.ClientOptions) mqtt.Client {
	self.mu.Lock()
	self.Opt = opt
	self.mu.Unlock()
	return self
}

// TestPublish delivers message as if broker sent it.
func (self *MqttMock) TestPublish(t testing.TB, topic string, payload []byte) {
	self.mu.Lock()
	subs := append([]MockSub(nil), self.subs...)
	self.mu.Unlock()
	for _, sub := range subs {
		if topic == sub.Pattern {
			msg := MockMsg{T: topic, P: payload, acked: make(chan struct{})}
			sub.Handler(self, msg)
			select {
			case <-msg.acked:
			default:
				t.Errorf("message='%s' handled without Ack()", string(payload))
			}
			return
		}
	}
	t.Errorf("not subscribed for topic=%s", topic)
}

// Published returns and forgets messages sent by client.
func (self *MqttMock) Published() []MockMsg {
	self.mu.Lock()
	defer self.mu.Unlock()
	r := self.pub
	self.pub = nil
	return r
}

func (self *MqttMock) Connects() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connects
}

// Drop simulates broker connection loss.
func (self *MqttMock) Drop(err error) {
	self.mu.Lock()
	self.connected = false
	opt := self.Opt
	self.mu.Unlock()
	if opt != nil && opt.OnConnectionLost != nil {
		opt.OnConnectionLost(self, err)
	}
}

// Finish completes held Connect token.
func (self *MqttMock) Finish() {
	self.mu.Lock()
	tok := self.held
	self.held = nil
	self.mu.Unlock()
	if tok != nil {
		self.finishConnect(tok)
	}
}

func (self *MqttMock) Disconnect(uint) {
	self.mu.Lock()
	self.connected = false
	self.subs = self.subs[:0]
	self.mu.Unlock()
}

func (self *MqttMock) IsConnected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connected
}
func (self *MqttMock) IsConnectionOpen() bool { return self.IsConnected() }

func (self *MqttMock) Connect() mqtt.Token {
	tok := newMockToken()
	self.mu.Lock()
	self.connects++
	if self.Hold {
		self.held = tok
		self.mu.Unlock()
		return tok
	}
	self.mu.Unlock()
	// paho calls OnConnect from its own goroutine
	go self.finishConnect(tok)
	return tok
}

func (self *MqttMock) finishConnect(tok *mockToken) {
	self.mu.Lock()
	err := self.ConnectErr
	self.connected = err == nil
	opt := self.Opt
	self.mu.Unlock()
	if err == nil && opt != nil && opt.OnConnect != nil {
		opt.OnConnect(self)
	}
	tok.finish(err)
}

func (self *MqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	var p []byte
	switch x := payload.(type) {
	case string:
		p = []byte(x)
	case []byte:
		p = x
	}
	self.mu.Lock()
	self.pub = append(self.pub, MockMsg{T: topic, P: p, Q: qos, R: retain})
	self.mu.Unlock()
	return doneToken(nil)
}

func (self *MqttMock) Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	self.mu.Lock()
	self.subs = append(self.subs, MockSub{pattern, qos, handler})
	self.mu.Unlock()
	return doneToken(nil)
}

func (self *MqttMock) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }

func (self *MqttMock) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}

func (self *MqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *MqttMock) Unsubscribe(...string) mqtt.Token { panic("not implemented") }

type mockToken struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newMockToken() *mockToken { return &mockToken{done: make(chan struct{})} }

func doneToken(err error) *mockToken {
	tok := newMockToken()
	tok.finish(err)
	return tok
}

func (tok *mockToken) finish(err error) {
	tok.once.Do(func() {
		tok.err = err
		close(tok.done)
	})
}

func (tok *mockToken) Done() <-chan struct{} { return tok.done }
func (tok *mockToken) Error() error {
	select {
	case <-tok.done:
		return tok.err
	default:
		return nil
	}
}
func (tok *mockToken) Wait() bool { <-tok.done; return true }
func (tok *mockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-tok.done:
		return true
	case <-time.After(d):
		return false
	}
}

type MockMsg struct {
	T     string
	P     []byte
	Q     byte
	R     bool
	acked chan struct{}
}

func (msg MockMsg) Ack() {
	if msg.acked != nil {
		close(msg.acked)
	}
}

func (msg MockMsg) Duplicate() bool   { return false }
func (msg MockMsg) MessageID() uint16 { return 0 }
func (msg MockMsg) Payload() []byte   { return msg.P }
func (msg MockMsg) Qos() byte         { return msg.Q }
func (msg MockMsg) Retained() bool    { return msg.R }
func (msg MockMsg) Topic() string     { return msg.T }

var _ mqtt.Client = &MqttMock{}
