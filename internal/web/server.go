package web

import (
	"context"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wifionoff/log2"
)

const (
	DefaultListen  = ":80"
	DefaultTimeout = 3 * time.Second
	pairImageSize  = 256
)

type Config struct {
	Listen string
	// QR code content for /pair.png, {client_id} is replaced; empty disables route
	PairQR string
	// max wait for device main loop per request
	Timeout time.Duration
}

type Server struct {
	Log    *log2.Log
	config Config
	ctl    Controller
	router *mux.Router
	http   *http.Server
	addr   string
}

func NewServer(c Config, ctl Controller, log *log2.Log) *Server {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	s := &Server{
		Log:    log,
		config: c,
		ctl:    ctl,
		router: mux.NewRouter(),
	}
	s.router.HandleFunc(RouteIndex, s.page(RouteIndex, "index")).Methods(http.MethodGet, http.MethodHead, http.MethodPost)
	s.router.HandleFunc(RouteSettings, s.page(RouteSettings, "settings")).Methods(http.MethodGet, http.MethodHead, http.MethodPost)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	s.router.HandleFunc("/pair.png", s.pairImage).Methods(http.MethodGet)
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Addr is actual listen address, valid after Start.
func (s *Server) Addr() string { return s.addr }

// Start binds listen address, serves in background until a stops.
func (s *Server) Start(a *alive.Alive) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return errors.Annotatef(err, "web listen=%s", s.config.Listen)
	}
	s.addr = ln.Addr().String()
	if !a.Add(2) {
		_ = ln.Close()
		return errors.New("web start: already stopping")
	}
	s.Log.Infof("web listen=%s", s.addr)
	go func() {
		defer a.Done()
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.Log.Errorf("web serve err=%v", err)
			a.Stop()
		}
	}()
	go func() {
		defer a.Done()
		<-a.StopChan()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.Log.Errorf("web shutdown err=%v", err)
		}
	}()
	return nil
}

func (s *Server) page(route, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		code := http.StatusOK
		action, err := Plan(route, r.Method, r.PostForm)
		if err != nil {
			s.Log.Debugf("web %s %s plan err=%v", r.Method, route, err)
			code = http.StatusBadRequest
			action = Action{Kind: ActionNone}
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
		defer cancel()
		view, applyErr := Apply(ctx, s.ctl, action)
		if applyErr != nil {
			s.Log.Errorf("web %s %s err=%v", r.Method, route, applyErr)
			http.Error(w, "device busy", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			view.Error = err.Error()
		} else if view.Error != "" {
			code = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		if r.Method == http.MethodHead {
			return
		}
		if err := pages.ExecuteTemplate(w, name, view); err != nil {
			s.Log.Errorf("web render %s err=%v", name, err)
		}
	}
}

type statusJSON struct {
	Relay             bool   `json:"relay"`
	ClientID          string `json:"client_id"`
	NetworkConfigured bool   `json:"network_configured"`
	NetworkConnected  bool   `json:"network_connected"`
	MqttConfigured    bool   `json:"mqtt_configured"`
	MqttConnected     bool   `json:"mqtt_connected"`
	MqttServer        string `json:"mqtt_server"`
	RestartPending    bool   `json:"restart_pending"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()
	view, err := Apply(ctx, s.ctl, Action{Kind: ActionNone})
	if err != nil {
		http.Error(w, "device busy", http.StatusServiceUnavailable)
		return
	}
	b, err := json.Marshal(statusJSON{
		Relay:             view.RelayConnected,
		ClientID:          view.ClientID,
		NetworkConfigured: view.NetworkConfigured,
		NetworkConnected:  view.NetworkConnected,
		MqttConfigured:    view.MqttConfigured,
		MqttConnected:     view.MqttConnected,
		MqttServer:        view.MqttServer,
		RestartPending:    view.RestartPending,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) pairImage(w http.ResponseWriter, r *http.Request) {
	if s.config.PairQR == "" {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()
	view, err := Apply(ctx, s.ctl, Action{Kind: ActionNone})
	if err != nil {
		http.Error(w, "device busy", http.StatusServiceUnavailable)
		return
	}
	text := strings.ReplaceAll(s.config.PairQR, "{client_id}", view.ClientID)
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		s.Log.Errorf("web pair qr err=%v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	b, err := qr.PNG(pairImageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(b)
}

var pages = template.Must(template.New("").Parse(`
{{define "head"}}<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width">
<title>{{.ClientID}}</title></head><body>
<h1>{{.ClientID}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Saved}}<p class="saved">saved</p>{{end}}
{{if .RestartPending}}<p>restart pending</p>{{end}}
{{end}}

{{define "index"}}{{template "head" .}}
<p>relay: <b>{{if .RelayConnected}}on{{else}}off{{end}}</b></p>
<form method="post" action="/">
<button name="relay" value="on">on</button>
<button name="relay" value="off">off</button>
</form>
<p>mqtt: {{if .MqttConfigured}}{{.MqttServer}} {{if .MqttConnected}}connected{{else}}disconnected{{end}}{{else}}disabled{{end}}</p>
<p><a href="/settings">settings</a></p>
</body></html>
{{end}}

{{define "settings"}}{{template "head" .}}
<form method="post" action="/settings">
<p><label>mqtt server <input name="mqttserver" value="{{.MqttServer}}"></label></p>
<p><label><input type="radio" name="mqttState" value="on"{{if .MqttConfigured}} checked{{end}}> on</label>
<label><input type="radio" name="mqttState" value="off"{{if not .MqttConfigured}} checked{{end}}> off</label></p>
{{if .OTASupported}}<p><label>update password <input type="password" name="otapassword"></label>{{if .OTAPasswordSet}} (set){{end}}</p>{{end}}
<p><button>save</button></p>
</form>
<p><a href="/">back</a></p>
</body></html>
{{end}}
`))
