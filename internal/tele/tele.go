// Package tele publishes relay state to MQTT broker and receives commands.
package tele

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	TopicRoot        = "wifionoff"
	WillPayload      = "disconnected"
	DefaultPort      = 1883
	QosState    byte = 1
)

func ClientID(deviceName, hwAddress string) string {
	return fmt.Sprintf("%s_%s", deviceName, hwAddress)
}

type Topics struct {
	Get string // outgoing state, last will
	Set string // incoming commands
}

func NewTopics(clientID string) Topics {
	prefix := TopicRoot + "/" + clientID
	return Topics{Get: prefix + "/get", Set: prefix + "/set"}
}

type PayloadStyle string

const (
	PayloadDigit PayloadStyle = "digit" // "1" / "0"
	PayloadWord  PayloadStyle = "word"  // "on" / "off"
)

func ParsePayloadStyle(s string) (PayloadStyle, error) {
	switch PayloadStyle(s) {
	case "":
		return PayloadDigit, nil
	case PayloadDigit, PayloadWord:
		return PayloadStyle(s), nil
	}
	return "", errors.NotValidf("mqtt payload=%q (valid: digit, word)", s)
}

func (p PayloadStyle) Format(on bool) string {
	switch {
	case p == PayloadWord && on:
		return "on"
	case p == PayloadWord:
		return "off"
	case on:
		return "1"
	}
	return "0"
}

// ParseCommand accepts both payload styles. ok=false means ignore.
func ParseCommand(payload []byte) (on bool, ok bool) {
	switch strings.TrimSpace(string(payload)) {
	case "1", "on":
		return true, true
	case "0", "off":
		return false, true
	}
	return false, false
}

// BrokerURL accepts host, host:port, IPv6 with or without brackets.
func BrokerURL(server string, defaultPort int) string {
	if defaultPort == 0 {
		defaultPort = DefaultPort
	}
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
		port = ""
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	return "tcp://" + net.JoinHostPort(host, port)
}
