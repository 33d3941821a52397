// Package state reads configuration and wires all components into Global.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/internal/button"
	"github.com/temoto/wifionoff/internal/device"
	"github.com/temoto/wifionoff/internal/network"
	"github.com/temoto/wifionoff/internal/store"
	"github.com/temoto/wifionoff/internal/tele"
	"github.com/temoto/wifionoff/internal/web"
	"github.com/temoto/wifionoff/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Device       *device.Device
	Button       *button.Runner
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Medium       store.Medium
	Network      network.Networker
	Store        *store.Store
	Tele         *tele.Transport
	Web          *web.Server // nil with web.disable

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewGlobal(log *log2.Log) *Global {
	if log == nil {
		panic("code error NewGlobal() log=nil")
	}
	return &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	g := NewGlobal(log)
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Log.Infof("build version=%s client_id=%s", g.BuildVersion, cfg.ClientID())

	if err := g.InitStore(cfg); err != nil {
		return err
	}

	tele.SetPahoLog(g.Log, cfg.Mqtt.LogDebug)
	g.Tele = tele.NewTransport(tele.Config{
		ClientID:          cfg.ClientID(),
		Port:              cfg.Mqtt.Port,
		Payload:           cfg.PayloadStyle(),
		KeepaliveSec:      cfg.Mqtt.KeepaliveSec,
		ConnectTimeoutSec: cfg.Mqtt.ConnectTimeoutSec,
	}, g.Log, g.onMqttCommand, g.onMqttConnect)

	g.Network = network.NewCommandNetwork(network.Config{
		StatusCmd:  cfg.Network.StatusCmd,
		PairCmd:    cfg.Network.PairCmd,
		ForgetCmd:  cfg.Network.ForgetCmd,
		TimeoutSec: cfg.Network.TimeoutSec,
	}, g.Log)

	errs := make([]error, 0, 4)
	relay, err := g.Relay()
	if err != nil {
		errs = append(errs, err)
	}
	led, err := g.LED()
	if err != nil {
		errs = append(errs, err)
	}
	sampler, err := g.ButtonSampler()
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return helpers.FoldErrors(errs)
	}

	deps := device.Deps{
		Log:     g.Log,
		Store:   g.Store,
		Relay:   relay,
		Tele:    g.Tele,
		Network: g.Network,
	}
	if led != nil {
		deps.LED = led
	}
	g.Device = device.New(device.Config{
		LoopInterval:         helpers.IntMillisecondDefault(cfg.LoopMs, device.DefaultLoopInterval),
		NetworkCheckInterval: helpers.IntSecondDefault(cfg.Network.CheckSec, device.DefaultNetworkCheckInterval),
		MqttRetryInterval:    time.Duration(cfg.Mqtt.RetrySec) * time.Second,
		MqttRetryMax:         time.Duration(cfg.Mqtt.RetryMaxSec) * time.Second,
		MqttRetryFactor:      float32(cfg.Mqtt.RetryFactor),
	}, deps)

	g.Button = &button.Runner{
		Detector: button.NewDetector(cfg.ButtonProfile(), g.Device),
		Sampler:  sampler,
		Log:      g.Log,
		Tick:     helpers.IntMillisecondDefault(cfg.Button.TickMs, button.DefaultTick),
	}

	if !cfg.Web.Disable {
		g.Web = web.NewServer(web.Config{
			Listen: cfg.Web.Listen,
			PairQR: cfg.Web.PairQR,
		}, g.Device, g.Log)
	}
	return nil
}

// InitStore opens only persistent configuration region, without hardware and transport.
func (g *Global) InitStore(cfg *Config) error {
	g.Config = cfg
	layout := cfg.Layout()
	if cfg.Store.Path == "" {
		g.Log.Errorf("config: store.path=empty, settings are lost on restart")
		g.Medium = store.NewMemoryMedium(layout.Size)
	} else {
		m, err := store.OpenFileMedium(cfg.Store.Path, layout.Size, g.Log)
		if err != nil {
			return errors.Annotate(err, "store init")
		}
		g.Medium = m
	}
	var err error
	if g.Store, err = store.New(g.Medium, layout, g.Log); err != nil {
		return errors.Annotate(err, "store init")
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Run boots device and serves until stop or restart request.
// Returns device.ErrRestart when device asks for restart.
func (g *Global) Run(ctx context.Context) error {
	result, err := g.Device.Boot(ctx)
	if err != nil {
		return errors.Annotate(err, "boot")
	}
	g.Log.Infof("boot store reinitialized=%t state=%+v", result.WasReinitialized, g.Device.State())

	if src := g.Hardware.button.source; src != nil {
		if !g.Alive.Add(1) {
			return nil
		}
		go src.Run(g.Alive)
	}
	if !g.Alive.Add(1) {
		return nil
	}
	go g.Button.Run(g.Alive)
	if g.Web != nil {
		if err := g.Web.Start(g.Alive); err != nil {
			g.Alive.Stop()
			return errors.Annotate(err, "web")
		}
	}

	err = g.Device.Loop(ctx, g.Alive.StopChan())
	g.Alive.Stop()
	if err != nil && err != device.ErrRestart {
		return errors.Annotate(err, "device loop")
	}
	return err
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// StopWait stops all tasks, false on timeout.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases hardware, transport and store medium. Call after tasks stopped.
func (g *Global) Close() error {
	errs := make([]error, 0, 4)
	if g.Tele != nil {
		g.Tele.Close()
	}
	errs = append(errs, g.closeHardware())
	if g.Medium != nil {
		errs = append(errs, g.Medium.Close())
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(errors.ErrorStack(err))
	}
}

// paho callbacks may fire before Device is assigned
func (g *Global) onMqttCommand(payload []byte) {
	if d := g.Device; d != nil {
		d.OnMqttCommand(payload)
	}
}

func (g *Global) onMqttConnect() {
	if d := g.Device; d != nil {
		d.OnMqttConnect()
	}
}
