// Package device owns relay and configuration state.
// All mutations run on main loop goroutine: Loop, Poll or Do/Post jobs.
// Button gestures arrive from tick goroutine and only set atomic requests.
package device

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/internal/network"
	"github.com/temoto/wifionoff/internal/store"
	"github.com/temoto/wifionoff/internal/tele"
	"github.com/temoto/wifionoff/log2"
)

var ErrRestart = errors.New("restart required")

type Switch interface {
	Set(on bool) error
}

// Publisher is implemented by tele.Transport.
type Publisher interface {
	ClientID() string
	Configure(server string)
	Configured() bool
	Connected() bool
	Connect() bool
	Pending() bool
	PublishState(on bool) bool
}

type Config struct {
	LoopInterval         time.Duration
	BlinkPeriod          time.Duration
	NetworkCheckInterval time.Duration
	// pause between MQTT connect attempts, zero means every iteration
	MqttRetryInterval time.Duration
	// factor >1 grows pause after each failed attempt up to MqttRetryMax
	MqttRetryFactor float32
	MqttRetryMax    time.Duration
	InboxSize       int
}

const (
	DefaultLoopInterval         = 20 * time.Millisecond
	DefaultBlinkPeriod          = 100 * time.Millisecond
	DefaultNetworkCheckInterval = 10 * time.Second
	DefaultInboxSize            = 16
)

type Deps struct {
	Log     *log2.Log
	Store   *store.Store
	Relay   Switch
	LED     Switch
	Tele    Publisher
	Network network.Networker
}

// State is snapshot for views. Durable fields mirror store.
type State struct {
	RelayConnected    bool
	NetworkConfigured bool
	NetworkConnected  bool
	MqttConfigured    bool
	MqttConnected     bool
	MqttServer        string
	OTAPasswordSet    bool
	OTASupported      bool
	ClientID          string
	RestartPending    bool
}

type Device struct {
	Log     *log2.Log
	config  Config
	store   *store.Store
	relay   Switch
	led     Switch
	tele    Publisher
	network network.Networker

	// main loop only
	state        State
	blink        blinkState
	restart      bool
	lastNetCheck time.Time
	backoff      helpers.Backoff

	// written by tick goroutine
	toggles  int32
	requests uint32
	feedback int32

	inbox chan func()
}

func New(c Config, deps Deps) *Device {
	if c.LoopInterval <= 0 {
		c.LoopInterval = DefaultLoopInterval
	}
	if c.BlinkPeriod <= 0 {
		c.BlinkPeriod = DefaultBlinkPeriod
	}
	if c.NetworkCheckInterval <= 0 {
		c.NetworkCheckInterval = DefaultNetworkCheckInterval
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	d := &Device{
		Log:     deps.Log,
		config:  c,
		store:   deps.Store,
		relay:   deps.Relay,
		led:     deps.LED,
		tele:    deps.Tele,
		network: deps.Network,
		inbox:   make(chan func(), c.InboxSize),
		backoff: helpers.Backoff{
			Min: c.MqttRetryInterval,
			Max: c.MqttRetryMax,
			K:   c.MqttRetryFactor,
		},
	}
	if d.relay == nil {
		d.relay = nopSwitch{}
	}
	if d.led == nil {
		d.led = nopSwitch{}
	}
	return d
}

// Boot validates store, loads durable state, relay starts disconnected.
func (d *Device) Boot(ctx context.Context) (store.InitResult, error) {
	result, err := d.store.InitializeIfInvalid()
	if err != nil {
		return result, errors.Annotate(err, "device boot")
	}
	if result.WasReinitialized {
		d.Log.Infof("store was reinitialized, configuration is at defaults")
	}
	d.load()
	d.SetRelay(false)
	d.applyMqttConfig()
	d.refreshNetwork(ctx, time.Now())
	d.Log.Infof("device boot network_configured=%t mqtt_configured=%t mqtt_server=%q",
		d.state.NetworkConfigured, d.state.MqttConfigured, d.state.MqttServer)
	return result, nil
}

func (d *Device) State() State {
	s := d.state
	s.MqttConnected = d.tele.Connected()
	s.ClientID = d.tele.ClientID()
	s.RestartPending = d.restart
	return s
}

func (d *Device) Layout() store.Layout { return d.store.Layout() }

// SetRelay always attempts publish, also when state did not change.
func (d *Device) SetRelay(on bool) {
	d.state.RelayConnected = on
	if err := d.relay.Set(on); err != nil {
		d.Log.Errorf("relay set=%t err=%v", on, err)
	}
	if !d.blink.active() {
		d.setLED(on)
	}
	d.tele.PublishState(on)
}

func (d *Device) ToggleRelay() { d.SetRelay(!d.state.RelayConnected) }

// HandleCommand applies MQTT set payload, unknown payload is ignored.
func (d *Device) HandleCommand(payload []byte) {
	on, ok := tele.ParseCommand(payload)
	if !ok {
		d.Log.Debugf("mqtt command ignore payload=%q", payload)
		return
	}
	d.SetRelay(on)
}

// ApplyNetworkConfig validates and persists MQTT settings.
// Empty server keeps current address. Rejection is errors.IsNotValid, state untouched.
func (d *Device) ApplyNetworkConfig(server string, enabled bool) error {
	if err := ValidateServer(server, d.store.Layout().MaxString(store.FieldMqttServer)); err != nil {
		return err
	}
	newServer := server
	if newServer == "" {
		newServer = d.state.MqttServer
	}
	if newServer == d.state.MqttServer && enabled == d.state.MqttConfigured {
		return nil
	}

	if newServer != d.state.MqttServer {
		if err := d.store.WriteString(store.FieldMqttServer, newServer); err != nil {
			return errors.Annotate(err, "apply network config")
		}
		d.state.MqttServer = newServer
	}
	if err := d.store.WriteFlag(store.FieldMqttConfigured, enabled); err != nil {
		return errors.Annotate(err, "apply network config")
	}
	d.state.MqttConfigured = enabled
	d.Log.Infof("mqtt config server=%q enabled=%t", newServer, enabled)
	d.applyMqttConfig()
	return nil
}

// ApplyOTAPassword stores firmware update password, empty keeps current.
func (d *Device) ApplyOTAPassword(password string) error {
	layout := d.store.Layout()
	if !layout.Has(store.FieldOTAPassword) {
		return errors.NotSupportedf("layout=%s OTA password", layout.Name)
	}
	if password == "" {
		return nil
	}
	if err := ValidatePassword(password, layout.MaxString(store.FieldOTAPassword)); err != nil {
		return err
	}
	if err := d.store.WriteString(store.FieldOTAPassword, password); err != nil {
		return errors.Annotate(err, "apply OTA password")
	}
	d.state.OTAPasswordSet = true
	return nil
}

// EnterPairing runs network pairing, only when network is not configured.
func (d *Device) EnterPairing(ctx context.Context) error {
	if d.state.NetworkConfigured {
		d.Log.Infof("pairing ignored, network already configured")
		return nil
	}
	d.Log.Infof("pairing begin")
	if err := d.network.Pair(ctx); err != nil {
		return errors.Annotate(err, "pairing")
	}
	if err := d.store.WriteFlag(store.FieldNetworkConfigured, true); err != nil {
		return errors.Annotate(err, "pairing")
	}
	d.state.NetworkConfigured = true
	d.refreshNetwork(ctx, time.Now())
	d.Log.Infof("pairing success")
	return nil
}

// ForgetNetwork clears network credentials and requires restart.
func (d *Device) ForgetNetwork(ctx context.Context) error {
	d.Log.Infof("forget network")
	err := d.network.Forget(ctx)
	if err != nil && !errors.IsNotSupported(err) {
		return errors.Annotate(err, "forget network")
	}
	if err := d.store.WriteFlag(store.FieldNetworkConfigured, false); err != nil {
		return errors.Annotate(err, "forget network")
	}
	d.state.NetworkConfigured = false
	d.state.NetworkConnected = false
	d.restart = true
	return nil
}

// PerformFactoryReset erases network and MQTT configuration, then requires restart.
// Store is wiped, defaults are written by validation on next boot.
func (d *Device) PerformFactoryReset(ctx context.Context) error {
	d.Log.Infof("factory reset")
	if err := d.network.Forget(ctx); err != nil && !errors.IsNotSupported(err) {
		d.Log.Errorf("factory reset forget network err=%v", err)
	}
	d.tele.Configure("")
	d.restart = true
	d.state = State{
		RelayConnected: d.state.RelayConnected,
		OTASupported:   d.state.OTASupported,
	}
	return errors.Annotate(d.store.Erase(), "factory reset")
}

func (d *Device) load() {
	layout := d.store.Layout()
	d.state.NetworkConfigured = d.store.ReadFlag(store.FieldNetworkConfigured)
	d.state.MqttConfigured = d.store.ReadFlag(store.FieldMqttConfigured)
	d.state.MqttServer = d.store.ReadString(store.FieldMqttServer)
	d.state.OTASupported = layout.Has(store.FieldOTAPassword)
	d.state.OTAPasswordSet = d.state.OTASupported && d.store.ReadString(store.FieldOTAPassword) != ""
}

func (d *Device) applyMqttConfig() {
	if d.state.MqttConfigured && d.state.MqttServer != "" {
		d.tele.Configure(d.state.MqttServer)
	} else {
		d.tele.Configure("")
	}
	d.backoff.Reset()
}

func (d *Device) refreshNetwork(ctx context.Context, now time.Time) {
	d.state.NetworkConnected = d.network.Connected(ctx)
	d.lastNetCheck = now
}

func (d *Device) setLED(on bool) {
	if err := d.led.Set(on); err != nil {
		d.Log.Errorf("led set=%t err=%v", on, err)
	}
}

type nopSwitch struct{}

func (nopSwitch) Set(bool) error { return nil }
