package tele

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/log2"
)

type Config struct {
	ClientID          string
	Port              int
	Payload           PayloadStyle
	KeepaliveSec      int
	ConnectTimeoutSec int
}

type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// Transport owns paho client. Connect never blocks, main loop polls Pending.
// Callbacks are invoked from paho goroutines.
type Transport struct {
	log       *log2.Log
	config    Config
	topics    Topics
	onCommand func(payload []byte)
	onConnect func()
	newClient ClientFactory

	mu      sync.Mutex
	client  mqtt.Client
	server  string
	pending mqtt.Token
}

// SetPahoLog routes paho package loggers, process-wide.
func SetPahoLog(log *log2.Log, debug bool) {
	mqtt.ERROR = log.Printer(log2.LError, "mqtt: ")
	mqtt.CRITICAL = log.Printer(log2.LError, "mqtt critical: ")
	mqtt.WARN = log.Printer(log2.LInfo, "mqtt warn: ")
	if debug {
		mqtt.DEBUG = log.Printer(log2.LDebug, "mqtt: ")
	}
}

func NewTransport(c Config, log *log2.Log, onCommand func([]byte), onConnect func()) *Transport {
	if c.Payload == "" {
		c.Payload = PayloadDigit
	}
	return &Transport{
		log:       log,
		config:    c,
		topics:    NewTopics(c.ClientID),
		onCommand: onCommand,
		onConnect: onConnect,
		newClient: mqtt.NewClient,
	}
}

// SetClientFactory replaces mqtt.NewClient, used with MqttMock.
func (t *Transport) SetClientFactory(f ClientFactory) {
	t.mu.Lock()
	t.newClient = f
	t.mu.Unlock()
}

func (t *Transport) Topics() Topics   { return t.topics }
func (t *Transport) ClientID() string { return t.config.ClientID }

func (t *Transport) Server() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.server
}

// Configure drops current connection and binds new broker address.
// Empty server leaves transport unconfigured.
func (t *Transport) Configure(server string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnect()
	t.server = server
	if server == "" {
		t.log.Infof("mqtt unconfigured")
		return
	}

	broker := BrokerURL(server, t.config.Port)
	keepAlive := helpers.IntSecondDefault(t.config.KeepaliveSec, 60*time.Second)
	connectTimeout := helpers.IntSecondDefault(t.config.ConnectTimeoutSec, 10*time.Second)
	opt := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(t.config.ClientID).
		SetWill(t.topics.Get, WillPayload, QosState, true).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetDefaultPublishHandler(t.messageHandler).
		SetOnConnectHandler(t.onConnectHandler).
		SetConnectionLostHandler(t.connectLostHandler)
	t.client = t.newClient(opt)
	t.log.Infof("mqtt configured broker=%s client=%s", broker, t.config.ClientID)
}

func (t *Transport) Configured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnected()
}

// Pending reports connect attempt in flight and collects finished attempt result.
func (t *Transport) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

// Connect starts one attempt if configured, not connected and no attempt in flight.
// Returns true if attempt started.
func (t *Transport) Connect() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || t.client.IsConnected() || t.pendingLocked() {
		return false
	}
	t.log.Debugf("mqtt connect server=%s", t.server)
	t.pending = t.client.Connect()
	return true
}

// PublishState does nothing if not connected, never queues.
func (t *Transport) PublishState(on bool) bool {
	t.mu.Lock()
	c := t.client
	t.mu.Unlock()
	if c == nil || !c.IsConnected() {
		t.log.Debugf("mqtt not connected, skip publish state=%t", on)
		return false
	}
	payload := t.config.Payload.Format(on)
	t.log.Debugf("mqtt publish topic=%s payload=%s", t.topics.Get, payload)
	c.Publish(t.topics.Get, QosState, true, payload)
	return true
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnect()
}

func (t *Transport) disconnect() {
	if t.client == nil {
		return
	}
	t.log.Infof("mqtt disconnect server=%s", t.server)
	t.client.Disconnect(250)
	t.client = nil
	t.pending = nil
}

func (t *Transport) pendingLocked() bool {
	if t.pending == nil {
		return false
	}
	select {
	case <-t.pending.Done():
		if err := t.pending.Error(); err != nil {
			t.log.Errorf("mqtt connect server=%s err=%v", t.server, err)
		}
		t.pending = nil
		return false
	default:
		return true
	}
}

func (t *Transport) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	t.log.Debugf("mqtt message topic=%s payload=%q", msg.Topic(), payload)
	msg.Ack()
	if msg.Topic() != t.topics.Set {
		return
	}
	t.onCommand(payload)
}

func (t *Transport) connectLostHandler(c mqtt.Client, err error) {
	t.log.Infof("mqtt connection lost err=%v", err)
}

// paho goroutine, must not wait for main loop
func (t *Transport) onConnectHandler(c mqtt.Client) {
	t.log.Infof("mqtt connected")
	token := c.Subscribe(t.topics.Set, 1, t.messageHandler)
	go func() {
		if token.Wait() && token.Error() != nil {
			t.log.Error(errors.Annotatef(token.Error(), "mqtt subscribe topic=%s", t.topics.Set))
		}
	}()
	if t.onConnect != nil {
		t.onConnect()
	}
}
