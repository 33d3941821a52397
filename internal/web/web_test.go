package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wifionoff/internal/device"
	"github.com/temoto/wifionoff/log2"
)

type fakeCtl struct {
	state   device.State
	doErr   error
	confErr error
	otaErr  error
	calls   []string
}

func (f *fakeCtl) Do(ctx context.Context, fun func()) error {
	if f.doErr != nil {
		return f.doErr
	}
	fun()
	return nil
}
func (f *fakeCtl) State() device.State { return f.state }
func (f *fakeCtl) SetRelay(on bool) {
	f.calls = append(f.calls, "relay")
	f.state.RelayConnected = on
}
func (f *fakeCtl) ApplyNetworkConfig(server string, enabled bool) error {
	f.calls = append(f.calls, "config")
	if f.confErr != nil {
		return f.confErr
	}
	if server != "" {
		f.state.MqttServer = server
	}
	f.state.MqttConfigured = enabled
	return nil
}
func (f *fakeCtl) ApplyOTAPassword(password string) error {
	f.calls = append(f.calls, "ota")
	if f.otaErr != nil {
		return f.otaErr
	}
	f.state.OTAPasswordSet = true
	return nil
}

func TestPlan(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		route  string
		method string
		form   url.Values
		expect Action
		check  func(error) bool
	}
	cases := []Case{
		{"index-get", RouteIndex, http.MethodGet, nil, Action{Kind: ActionNone}, nil},
		{"settings-head", RouteSettings, http.MethodHead, nil, Action{Kind: ActionNone}, nil},
		{"relay-on", RouteIndex, http.MethodPost, url.Values{"relay": {"on"}},
			Action{Kind: ActionSetRelay, Relay: true}, nil},
		{"relay-off", RouteIndex, http.MethodPost, url.Values{"relay": {"off"}, "junk": {"1"}},
			Action{Kind: ActionSetRelay, Relay: false}, nil},
		{"relay-bad", RouteIndex, http.MethodPost, url.Values{"relay": {"1"}}, Action{}, errors.IsNotValid},
		{"relay-missing", RouteIndex, http.MethodPost, url.Values{}, Action{}, errors.IsNotValid},
		{"settings", RouteSettings, http.MethodPost,
			url.Values{"mqttserver": {"10.0.0.2"}, "mqttState": {"on"}},
			Action{Kind: ActionApplyConfig, MqttServer: "10.0.0.2", MqttEnabled: true}, nil},
		{"settings-ota", RouteSettings, http.MethodPost,
			url.Values{"mqttserver": {""}, "mqttState": {"off"}, "otapassword": {"s3cret"}},
			Action{Kind: ActionApplyConfig, OTAPassword: "s3cret"}, nil},
		{"settings-bad-state", RouteSettings, http.MethodPost,
			url.Values{"mqttserver": {"x"}, "mqttState": {"yes"}}, Action{}, errors.IsNotValid},
		{"unknown-route", "/admin", http.MethodGet, nil, Action{}, errors.IsNotFound},
		{"bad-method", RouteIndex, http.MethodDelete, nil, Action{}, errors.IsNotSupported},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			a, err := Plan(c.route, c.method, c.form)
			if c.check != nil {
				require.Error(t, err)
				assert.True(t, c.check(err), "err=%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, a)
		})
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{}
	v, err := Apply(context.Background(), ctl, Action{Kind: ActionSetRelay, Relay: true})
	require.NoError(t, err)
	assert.True(t, v.RelayConnected)
	assert.Equal(t, "", v.Error)

	v, err = Apply(context.Background(), ctl, Action{Kind: ActionApplyConfig, MqttServer: "broker", MqttEnabled: true, OTAPassword: "pw"})
	require.NoError(t, err)
	assert.True(t, v.Saved)
	assert.Equal(t, "broker", v.MqttServer)
	assert.True(t, v.OTAPasswordSet)
	assert.Equal(t, []string{"relay", "config", "ota"}, ctl.calls)

	ctl.confErr = errors.NotValidf("mqtt server")
	v, err = Apply(context.Background(), ctl, Action{Kind: ActionApplyConfig, MqttServer: "<x>"})
	require.NoError(t, err)
	assert.False(t, v.Saved)
	assert.Equal(t, "mqtt server not valid", v.Error)
	assert.Equal(t, "broker", v.MqttServer)

	ctl.doErr = context.DeadlineExceeded
	_, err = Apply(context.Background(), ctl, Action{Kind: ActionNone})
	assert.Error(t, err)
}

func newTestServer(t testing.TB, ctl Controller, c Config) *Server {
	return NewServer(c, ctl, log2.NewTest(t, log2.LDebug))
}

func TestServerIndex(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{state: device.State{ClientID: "plug_0a0b0c"}}
	h := newTestServer(t, ctl, Config{}).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "plug_0a0b0c")
	assert.Contains(t, w.Body.String(), "<b>off</b>")

	form := url.Values{"relay": {"on"}}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<b>on</b>")
	assert.True(t, ctl.state.RelayConnected)

	form = url.Values{"relay": {"maybe"}}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not valid")
	assert.True(t, ctl.state.RelayConnected)
}

func TestServerSettings(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{state: device.State{ClientID: "plug_1", OTASupported: true}}
	h := newTestServer(t, ctl, Config{}).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="otapassword"`)

	post := func(form url.Values) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}
	w = post(url.Values{"mqttserver": {"10.1.1.1"}, "mqttState": {"on"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="10.1.1.1"`)
	assert.Contains(t, w.Body.String(), "saved")

	ctl.confErr = errors.NotValidf("mqtt server")
	w = post(url.Values{"mqttserver": {"evil"}, "mqttState": {"on"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "mqtt server not valid")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/settings", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServerBusy(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{doErr: context.DeadlineExceeded}
	h := newTestServer(t, ctl, Config{}).Handler()
	for _, path := range []string{"/", "/status"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestServerStatus(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{state: device.State{
		RelayConnected: true,
		ClientID:       "plug_2",
		MqttConfigured: true,
		MqttServer:     "broker",
	}}
	h := newTestServer(t, ctl, Config{}).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, true, st["relay"])
	assert.Equal(t, "plug_2", st["client_id"])
	assert.Equal(t, "broker", st["mqtt_server"])
	assert.Equal(t, false, st["mqtt_connected"])
}

func TestServerPairImage(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{state: device.State{ClientID: "plug_3"}}

	h := newTestServer(t, ctl, Config{}).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pair.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	h = newTestServer(t, ctl, Config{PairQR: "wifionoff:{client_id}"}).Handler()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pair.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestServerStart(t *testing.T) {
	t.Parallel()

	ctl := &fakeCtl{state: device.State{ClientID: "plug_4"}}
	s := newTestServer(t, ctl, Config{Listen: "127.0.0.1:0"})
	a := alive.NewAlive()
	require.NoError(t, s.Start(a))

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "plug_4")

	a.Stop()
	a.Wait()
	_, err = http.Get("http://" + s.Addr() + "/status")
	assert.Error(t, err)
}
