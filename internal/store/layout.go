package store

import (
	"fmt"

	"github.com/juju/errors"
)

type FieldID uint8

const (
	FieldVersion FieldID = iota
	FieldChecksum
	FieldNetworkConfigured
	FieldMqttConfigured
	FieldMqttServer
	FieldOTAPassword
)

func (f FieldID) String() string {
	switch f {
	case FieldVersion:
		return "version"
	case FieldChecksum:
		return "checksum"
	case FieldNetworkConfigured:
		return "network_configured"
	case FieldMqttConfigured:
		return "mqtt_configured"
	case FieldMqttServer:
		return "mqtt_server"
	case FieldOTAPassword:
		return "ota_password"
	}
	return fmt.Sprintf("FieldID(%d)", uint8(f))
}

const (
	FlagEnabled  byte = 0xeb
	FlagDisabled byte = 0x00

	offsetVersion  = 0
	offsetChecksum = 1
	sizeChecksum   = 4
	// checksum covers everything after itself
	offsetCovered = offsetChecksum + sizeChecksum
	StringSlot    = 256
)

type Slot struct {
	Offset int
	Size   int
}

// Layout describes fixed field offsets of one record schema.
// Changing any offset or size requires new Version.
type Layout struct {
	Name    string
	Version byte
	Size    int
	slots   map[FieldID]Slot
}

var (
	// Captive portal variant, no remote firmware update.
	LayoutPortal = newLayout("portal", 1, []FieldID{
		FieldNetworkConfigured, FieldMqttConfigured, FieldMqttServer,
	})
	// Push-button pairing variant with OTA password.
	LayoutWPS = newLayout("wps", 2, []FieldID{
		FieldNetworkConfigured, FieldMqttConfigured, FieldMqttServer, FieldOTAPassword,
	})
)

func newLayout(name string, version byte, fields []FieldID) Layout {
	l := Layout{
		Name:    name,
		Version: version,
		slots: map[FieldID]Slot{
			FieldVersion:  {offsetVersion, 1},
			FieldChecksum: {offsetChecksum, sizeChecksum},
		},
	}
	off := offsetCovered
	for _, f := range fields {
		size := 1
		switch f {
		case FieldMqttServer, FieldOTAPassword:
			size = StringSlot
		}
		l.slots[f] = Slot{off, size}
		off += size
	}
	l.Size = off
	return l
}

func LayoutByName(name string) (Layout, error) {
	switch name {
	case LayoutPortal.Name:
		return LayoutPortal, nil
	case LayoutWPS.Name:
		return LayoutWPS, nil
	}
	return Layout{}, errors.NotValidf("store layout=%q (valid: %s, %s)", name, LayoutPortal.Name, LayoutWPS.Name)
}

// WithVersion returns copy of layout stamped with other schema version.
func (l Layout) WithVersion(v byte) Layout {
	l.Version = v
	return l
}

func (l Layout) Has(f FieldID) bool {
	_, ok := l.slots[f]
	return ok
}

func (l Layout) Slot(f FieldID) (Slot, bool) {
	s, ok := l.slots[f]
	return s, ok
}

// MaxString is longest string value that fits field with terminator.
func (l Layout) MaxString(f FieldID) int {
	if s, ok := l.slots[f]; ok {
		return s.Size - 1
	}
	return 0
}

func (l Layout) mustSlot(f FieldID) Slot {
	s, ok := l.slots[f]
	if !ok {
		panic(fmt.Sprintf("code error store layout=%s has no field=%s", l.Name, f.String()))
	}
	return s
}
