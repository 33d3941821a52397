// Package network exposes WiFi association as configured/connected signals.
// Association itself (WPS, captive portal) is done by system tools.
package network

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/helpers"
	"github.com/temoto/wifionoff/log2"
)

type Networker interface {
	Connected(ctx context.Context) bool
	Pair(ctx context.Context) error
	Forget(ctx context.Context) error
}

type Config struct {
	StatusCmd  string
	PairCmd    string
	ForgetCmd  string
	TimeoutSec int
}

// CommandNetwork runs shell commands, e.g. `wpa_cli wps_pbc`.
type CommandNetwork struct {
	config  Config
	log     *log2.Log
	timeout time.Duration
}

func NewCommandNetwork(c Config, log *log2.Log) *CommandNetwork {
	return &CommandNetwork{
		config:  c,
		log:     log,
		timeout: helpers.IntSecondDefault(c.TimeoutSec, 10*time.Second),
	}
}

// Connected is true without status command.
func (n *CommandNetwork) Connected(ctx context.Context) bool {
	if n.config.StatusCmd == "" {
		return true
	}
	return n.run(ctx, "status", n.config.StatusCmd) == nil
}

func (n *CommandNetwork) Pair(ctx context.Context) error {
	if n.config.PairCmd == "" {
		return errors.NotSupportedf("network pair_cmd empty")
	}
	return n.run(ctx, "pair", n.config.PairCmd)
}

func (n *CommandNetwork) Forget(ctx context.Context) error {
	if n.config.ForgetCmd == "" {
		return errors.NotSupportedf("network forget_cmd empty")
	}
	return n.run(ctx, "forget", n.config.ForgetCmd)
}

func (n *CommandNetwork) run(ctx context.Context, tag, command string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &out
	cmd.Stderr = &out
	// children of sh may hold output pipe after kill
	cmd.WaitDelay = time.Second
	tbegin := time.Now()
	err := cmd.Run()
	n.log.Debugf("network %s cmd=%q duration=%v err=%v output=%q", tag, command, time.Since(tbegin), err, out.Bytes())
	return errors.Annotatef(err, "network %s", tag)
}

// Mock records calls. Zero value is disconnected.
type Mock struct {
	mu        sync.Mutex
	connected bool
	PairErr   error
	ForgetErr error
	Pairs     int
	Forgets   int
}

func (m *Mock) SetConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

func (m *Mock) Connected(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) Pair(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pairs++
	if m.PairErr == nil {
		m.connected = true
	}
	return m.PairErr
}

func (m *Mock) Forget(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forgets++
	if m.ForgetErr == nil {
		m.connected = false
	}
	return m.ForgetErr
}

func (m *Mock) Counts() (pairs, forgets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pairs, m.Forgets
}
