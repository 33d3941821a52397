// Package console runs device on mock pins and drives it from text commands.
// Useful to try configuration and MQTT broker without real hardware.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/wifionoff/cmd/wifionoff/subcmd"
	"github.com/temoto/wifionoff/hardware/pin"
	"github.com/temoto/wifionoff/helpers/cli"
	"github.com/temoto/wifionoff/internal/device"
	"github.com/temoto/wifionoff/internal/state"
	"github.com/temoto/wifionoff/internal/store"
)

const modName string = "console"

const (
	defaultRelayPin  = "relay"
	defaultLedPin    = "led"
	defaultButtonPin = "button"

	doTimeout   = 5 * time.Second
	stopTimeout = 5 * time.Second
)

var Mod = subcmd.Mod{Name: modName, Main: Main}

var suggests = []prompt.Suggest{
	{Text: "press", Description: "press <ms> hold button"},
	{Text: "relay", Description: "relay on|off"},
	{Text: "toggle", Description: "invert relay"},
	{Text: "mqtt", Description: "mqtt [server] on|off apply network config"},
	{Text: "status", Description: "show device state"},
	{Text: "reset", Description: "request factory reset"},
	{Text: "quit", Description: "stop and exit"},
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	ForceMock(config)
	g.MustInit(ctx, config)

	c := newConsole(ctx, g, os.Stdout)
	c.start()
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	exec := func(line string) {
		c.exec(line)
		if interactive && c.done() {
			// prompt never returns
			if err := c.finish(); err != nil {
				g.Log.Error(errors.ErrorStack(err))
				os.Exit(1)
			}
			os.Exit(0)
		}
	}
	cli.MainLoop(modName, exec, c.done, cli.Complete(suggests))
	return c.finish()
}

// ForceMock switches hardware section to in-memory pins with default names.
func ForceMock(c *state.Config) {
	h := &c.Hardware
	h.Driver = pin.DriverMock
	h.ButtonSource = state.ButtonSourcePin
	if h.RelayPin == "" {
		h.RelayPin = defaultRelayPin
	}
	if h.LedPin == "" {
		h.LedPin = defaultLedPin
	}
	if h.ButtonPin == "" {
		h.ButtonPin = defaultButtonPin
	}
	c.Web.Disable = true
}

type console struct {
	ctx   context.Context
	g     *state.Global
	out   io.Writer
	errch chan error
	// result of g.Run, valid after stopped
	runErr  error
	stopped bool
	quit    bool
}

func newConsole(ctx context.Context, g *state.Global, out io.Writer) *console {
	return &console{ctx: ctx, g: g, out: out, errch: make(chan error, 1)}
}

func (c *console) start() {
	go func() { c.errch <- c.g.Run(c.ctx) }()
}

func (c *console) done() bool {
	if !c.stopped {
		select {
		case c.runErr = <-c.errch:
			c.stopped = true
		default:
		}
	}
	return c.quit || c.stopped
}

// finish stops all tasks and releases hardware.
// Restart request is reported, console never reboots host.
func (c *console) finish() error {
	c.g.Stop()
	if !c.stopped {
		select {
		case c.runErr = <-c.errch:
			c.stopped = true
		case <-time.After(stopTimeout):
			return errors.Timeoutf("console stop")
		}
	}
	if !c.g.StopWait(stopTimeout) {
		c.g.Log.Errorf("tasks did not stop in %v", stopTimeout)
	}
	closeErr := c.g.Close()
	if c.runErr == device.ErrRestart {
		fmt.Fprintf(c.out, "device requested restart\n")
		return closeErr
	}
	if c.runErr != nil {
		return c.runErr
	}
	return closeErr
}

func (c *console) do(f func()) error {
	ctx, cancel := context.WithTimeout(c.ctx, doTimeout)
	defer cancel()
	return c.g.Device.Do(ctx, f)
}

func (c *console) exec(line string) {
	if err := c.execErr(line); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

func (c *console) execErr(line string) error {
	if c.done() {
		return errors.Errorf("device stopped")
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	args := parts[1:]
	switch parts[0] {
	case "press":
		if len(args) != 1 {
			return errors.NotValidf("usage: press <ms>")
		}
		ms, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return errors.NotValidf("press ms=%q", args[0])
		}
		return c.press(time.Duration(ms) * time.Millisecond)

	case "relay":
		if len(args) != 1 {
			return errors.NotValidf("usage: relay on|off")
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.do(func() { c.g.Device.SetRelay(on) })

	case "toggle":
		return c.do(c.g.Device.ToggleRelay)

	case "mqtt":
		server := ""
		switch len(args) {
		case 1:
		case 2:
			server, args = args[0], args[1:]
		default:
			return errors.NotValidf("usage: mqtt [server] on|off")
		}
		enabled, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		var applyErr error
		if err := c.do(func() { applyErr = c.g.Device.ApplyNetworkConfig(server, enabled) }); err != nil {
			return err
		}
		return applyErr

	case "status":
		var s device.State
		var layout store.Layout
		if err := c.do(func() { s, layout = c.g.Device.State(), c.g.Device.Layout() }); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "relay=%s client_id=%s network configured=%t connected=%t mqtt configured=%t connected=%t server=%q\n",
			onOff(s.RelayConnected), s.ClientID, s.NetworkConfigured, s.NetworkConnected,
			s.MqttConfigured, s.MqttConnected, s.MqttServer)
		det := c.g.Button.Detector
		snap := det.Snapshot(time.Now())
		fmt.Fprintf(c.out, "store layout=%s/%d button profile=%s pressed=%t held=%v tiers=%v\n",
			layout.Name, layout.Version, det.Profile().Name, snap.Pressed, snap.HeldFor, det.Profile().Tiers)
		if pins := c.g.MockPins(); pins != nil {
			h := c.g.Config.Hardware
			if o := pins.MockOutput(h.RelayPin); o != nil {
				fmt.Fprintf(c.out, "pin %s=%s\n", h.RelayPin, onOff(o.Value()))
			}
			if o := pins.MockOutput(h.LedPin); o != nil {
				fmt.Fprintf(c.out, "pin %s=%s\n", h.LedPin, onOff(o.Value()))
			}
		}
		return nil

	case "reset":
		c.g.Device.Request(device.RequestFactoryReset)
		return nil

	case "quit", "exit":
		c.quit = true
		return nil
	}
	return errors.NotFoundf("command=%s", parts[0])
}

// press holds mock button, blocks for duration.
func (c *console) press(d time.Duration) error {
	pins := c.g.MockPins()
	if pins == nil {
		return errors.NotSupportedf("press without mock pins")
	}
	btn := pins.MockInput(c.g.Config.Hardware.ButtonPin)
	if btn == nil {
		return errors.NotFoundf("mock button pin=%s", c.g.Config.Hardware.ButtonPin)
	}
	btn.Set(true)
	time.Sleep(d)
	btn.Set(false)
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1":
		return true, nil
	case "off", "0":
		return false, nil
	}
	return false, errors.NotValidf("%q (valid: on, off)", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
