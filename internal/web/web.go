// Package web maps local HTTP requests to device actions.
// Plan is pure request parsing, Apply executes action on device main loop,
// Server is net/http adapter rendering the result.
package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/schema"
	"github.com/juju/errors"
	"github.com/temoto/wifionoff/internal/device"
)

const (
	RouteIndex    = "/"
	RouteSettings = "/settings"
)

type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionSetRelay
	ActionApplyConfig
)

type Action struct {
	Kind        ActionKind
	Relay       bool
	MqttServer  string
	MqttEnabled bool
	// empty means keep current
	OTAPassword string
}

type relayForm struct {
	Relay string `schema:"relay"`
}

type settingsForm struct {
	MqttServer  string `schema:"mqttserver"`
	MqttState   string `schema:"mqttState"`
	OTAPassword string `schema:"otapassword"`
}

// schema.Decoder caches struct metadata and is safe for concurrent use.
var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Plan decides what request asks for without touching device.
// GET renders current state. POST fields are validated here only for shape,
// device applies its own content validation.
func Plan(route, method string, form url.Values) (Action, error) {
	switch route {
	case RouteIndex, RouteSettings:
	default:
		return Action{}, errors.NotFoundf("route=%s", route)
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return Action{Kind: ActionNone}, nil
	case http.MethodPost:
	default:
		return Action{}, errors.NotSupportedf("method=%s", method)
	}

	switch route {
	case RouteIndex:
		var f relayForm
		if err := decoder.Decode(&f, form); err != nil {
			return Action{}, errors.NewNotValid(err, "relay form")
		}
		on, err := onOff("relay", f.Relay)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionSetRelay, Relay: on}, nil

	default: // RouteSettings
		var f settingsForm
		if err := decoder.Decode(&f, form); err != nil {
			return Action{}, errors.NewNotValid(err, "settings form")
		}
		enabled, err := onOff("mqttState", f.MqttState)
		if err != nil {
			return Action{}, err
		}
		return Action{
			Kind:        ActionApplyConfig,
			MqttServer:  f.MqttServer,
			MqttEnabled: enabled,
			OTAPassword: f.OTAPassword,
		}, nil
	}
}

func onOff(field, value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, errors.NotValidf("%s=%q", field, value)
}

// Controller is implemented by device.Device.
// Do runs function on main loop, other methods must be called only inside Do.
type Controller interface {
	Do(ctx context.Context, f func()) error
	State() device.State
	SetRelay(on bool)
	ApplyNetworkConfig(server string, enabled bool) error
	ApplyOTAPassword(password string) error
}

type View struct {
	device.State
	// rejection reason for user, empty on success
	Error string
	Saved bool
}

// Apply executes action on main loop and snapshots resulting state.
// Device rejections go to View.Error, returned error means action did not run.
func Apply(ctx context.Context, ctl Controller, a Action) (View, error) {
	var v View
	err := ctl.Do(ctx, func() {
		switch a.Kind {
		case ActionSetRelay:
			ctl.SetRelay(a.Relay)
		case ActionApplyConfig:
			if err := ctl.ApplyNetworkConfig(a.MqttServer, a.MqttEnabled); err != nil {
				v.Error = err.Error()
				break
			}
			if a.OTAPassword != "" {
				if err := ctl.ApplyOTAPassword(a.OTAPassword); err != nil {
					v.Error = err.Error()
					break
				}
			}
			v.Saved = true
		}
		v.State = ctl.State()
	})
	return v, errors.Annotate(err, "web apply")
}
