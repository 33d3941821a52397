package state

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/internal/button"
	"github.com/temoto/wifionoff/internal/store"
	"github.com/temoto/wifionoff/internal/tele"
	"github.com/temoto/wifionoff/log2"
)

const (
	DefaultConfigName = "wifionoff.hcl"
	DefaultDeviceName = "wifionoff"
	DefaultInterface  = "wlan0"

	ButtonSourcePin   = "pin"
	ButtonSourceInput = "input"

	RestartExit   = "exit"
	RestartReboot = "reboot"

	// linux/input-event-codes.h KEY_WPS_BUTTON
	DefaultInputKey = 0x211
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		Name      string `hcl:"name"`
		Interface string `hcl:"interface"`
		// hex without separators, read from sysfs when empty
		HwAddress string `hcl:"hw_address"`
		// button tiers and default store layout: wps or portal
		Profile string `hcl:"profile"`
	} `hcl:"device"`

	Store struct {
		Layout  string `hcl:"layout"`
		Version int    `hcl:"version"`
		// directory for file backed region, empty = memory only
		Path string `hcl:"path"`
	} `hcl:"store"`

	Hardware struct {
		Driver          string `hcl:"driver"`
		Chip            string `hcl:"chip"`
		RelayPin        string `hcl:"relay_pin"`
		RelayActiveLow  bool   `hcl:"relay_active_low"`
		LedPin          string `hcl:"led_pin"`
		LedActiveLow    bool   `hcl:"led_active_low"`
		ButtonPin       string `hcl:"button_pin"`
		ButtonActiveLow bool   `hcl:"button_active_low"`
		ButtonPullUp    bool   `hcl:"button_pull_up"`
		ButtonSource    string `hcl:"button_source"`
		InputDevice     string `hcl:"input_device"`
		InputKey        int    `hcl:"input_key"`
	} `hcl:"hardware"`

	Button struct {
		TickMs int `hcl:"tick_ms"`
		// overrides hold threshold of profile tier, key is gesture name
		Tiers []TierConfig `hcl:"tier"`
	} `hcl:"button"`

	Mqtt struct {
		Port              int     `hcl:"port"`
		Payload           string  `hcl:"payload"`
		KeepaliveSec      int     `hcl:"keepalive_sec"`
		ConnectTimeoutSec int     `hcl:"connect_timeout_sec"`
		RetrySec          int     `hcl:"retry_sec"`
		RetryMaxSec       int     `hcl:"retry_max_sec"`
		RetryFactor       float64 `hcl:"retry_factor"`
		LogDebug          bool    `hcl:"log_debug"`
	} `hcl:"mqtt"`

	Network struct {
		StatusCmd  string `hcl:"status_cmd"`
		PairCmd    string `hcl:"pair_cmd"`
		ForgetCmd  string `hcl:"forget_cmd"`
		TimeoutSec int    `hcl:"timeout_sec"`
		CheckSec   int    `hcl:"check_sec"`
	} `hcl:"network"`

	Web struct {
		Disable bool   `hcl:"disable"`
		Listen  string `hcl:"listen"`
		PairQR  string `hcl:"pair_qr"`
	} `hcl:"web"`

	Restart string `hcl:"restart"`
	LoopMs  int    `hcl:"loop_ms"`

	// derived in normalize
	layout  store.Layout
	profile button.Profile
	payload tele.PayloadStyle

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type TierConfig struct {
	Name   string `hcl:"name,key"`
	HoldMs int    `hcl:"hold_ms"`
}

func (c *Config) Layout() store.Layout            { return c.layout }
func (c *Config) ButtonProfile() button.Profile   { return c.profile }
func (c *Config) PayloadStyle() tele.PayloadStyle { return c.payload }
func (c *Config) ClientID() string                { return tele.ClientID(c.Device.Name, c.Device.HwAddress) }

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// normalize applies defaults and derives typed values, all problems are reported at once.
func (c *Config) normalize(log *log2.Log, fs FullReader) error {
	errs := make([]error, 0, 8)

	if c.Device.Name == "" {
		c.Device.Name = DefaultDeviceName
	}
	if c.Device.Interface == "" {
		c.Device.Interface = DefaultInterface
	}
	if c.Device.HwAddress == "" {
		hw, err := readHwAddress(fs, c.Device.Interface)
		if err != nil {
			errs = append(errs, err)
		}
		c.Device.HwAddress = hw
	}
	c.Device.HwAddress = normalizeHwAddress(c.Device.HwAddress)
	if c.Device.Profile == "" {
		c.Device.Profile = button.ProfileWPS.Name
	}

	profile, err := button.ProfileByName(c.Device.Profile)
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, tc := range c.Button.Tiers {
			g, err := button.ParseGesture(tc.Name)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "config button.tier"))
				continue
			}
			p, err := profile.WithHold(g, time.Duration(tc.HoldMs)*time.Millisecond)
			if err != nil {
				errs = append(errs, errors.Annotatef(err, "config button.tier profile=%s", c.Device.Profile))
				continue
			}
			profile = p
		}
		if err := profile.Validate(); err != nil {
			errs = append(errs, errors.Annotate(err, "config button"))
		}
		c.profile = profile
	}
	if c.Button.TickMs < 0 {
		errs = append(errs, errors.NotValidf("config button.tick_ms=%d", c.Button.TickMs))
	}

	if c.Store.Layout == "" {
		c.Store.Layout = c.Device.Profile
	}
	if c.layout, err = store.LayoutByName(c.Store.Layout); err != nil {
		errs = append(errs, err)
	}
	switch {
	case c.Store.Version == 0:
	case c.Store.Version < 0 || c.Store.Version > 0xfe:
		// 0xff reads from erased flash and must never match
		errs = append(errs, errors.NotValidf("config store.version=%d (valid: 1-254)", c.Store.Version))
	default:
		c.layout = c.layout.WithVersion(byte(c.Store.Version))
	}

	switch c.Hardware.ButtonSource {
	case "":
		c.Hardware.ButtonSource = ButtonSourcePin
	case ButtonSourcePin:
	case ButtonSourceInput:
		if c.Hardware.InputDevice == "" {
			errs = append(errs, errors.NotValidf("config hardware.input_device empty with button_source=input"))
		}
		if c.Hardware.InputKey == 0 {
			c.Hardware.InputKey = DefaultInputKey
		}
	default:
		errs = append(errs, errors.NotValidf("config hardware.button_source=%q (valid: pin, input)", c.Hardware.ButtonSource))
	}

	if c.payload, err = tele.ParsePayloadStyle(c.Mqtt.Payload); err != nil {
		errs = append(errs, err)
	}
	switch {
	case c.Mqtt.Port == 0:
		c.Mqtt.Port = tele.DefaultPort
	case c.Mqtt.Port < 0 || c.Mqtt.Port > 65535:
		errs = append(errs, errors.NotValidf("config mqtt.port=%d", c.Mqtt.Port))
	}
	if c.Mqtt.RetryFactor < 0 {
		errs = append(errs, errors.NotValidf("config mqtt.retry_factor=%v", c.Mqtt.RetryFactor))
	}

	switch c.Restart {
	case "":
		c.Restart = RestartExit
	case RestartExit, RestartReboot:
	default:
		errs = append(errs, errors.NotValidf("config restart=%q (valid: exit, reboot)", c.Restart))
	}
	if c.LoopMs < 0 {
		errs = append(errs, errors.NotValidf("config loop_ms=%d", c.LoopMs))
	}

	log.Debugf("config client_id=%s profile=%s layout=%s/%d", c.ClientID(), c.profile.Name, c.layout.Name, c.layout.Version)
	return helpers.FoldErrors(errs)
}

func readHwAddress(fs FullReader, iface string) (string, error) {
	path := fs.Normalize(filepath.Join("/sys/class/net", iface, "address"))
	b, err := fs.ReadAll(path)
	if err == nil && b == nil {
		err = errors.NotFoundf("interface=%s", iface)
	}
	if err != nil {
		return "", errors.Annotate(err, "config device.hw_address empty and not readable")
	}
	return string(b), nil
}

// normalizeHwAddress turns "AA:BB:cc:dd:ee:ff\n" into "aabbccddeeff".
func normalizeHwAddress(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.NewReplacer(":", "", "-", "").Replace(s)
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) != 0 {
		return c, helpers.FoldErrors(errs)
	}
	return c, c.normalize(log, fs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
