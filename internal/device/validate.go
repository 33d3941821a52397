package device

import (
	"github.com/juju/errors"
)

func serverRuneAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.', r == ':', r == '[', r == ']':
		return true
	}
	return false
}

// ValidateServer allows letters, digits, hyphen, dot, colon, brackets. Empty is valid.
func ValidateServer(s string, maxLen int) error {
	if len(s) > maxLen {
		return errors.NotValidf("mqtt server address too long (%d > %d)", len(s), maxLen)
	}
	for _, r := range s {
		if !serverRuneAllowed(r) {
			return errors.NotValidf("mqtt server address character %q", r)
		}
	}
	return nil
}

// ValidatePassword allows printable ASCII without space.
func ValidatePassword(s string, maxLen int) error {
	if len(s) > maxLen {
		return errors.NotValidf("password too long (%d > %d)", len(s), maxLen)
	}
	for _, r := range s {
		if r <= ' ' || r > '~' {
			return errors.NotValidf("password character %q", r)
		}
	}
	return nil
}
