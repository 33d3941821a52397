package device

import (
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateServer(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"broker.lan", true},
		{"mqtt-1.example.com:1883", true},
		{"[fe80::1]:1883", true},
		{"10.0.0.2", true},
		{"evil<script>", false},
		{"a\"b", false},
		{"a'b", false},
		{"a&b", false},
		{"a b", false},
		{"a_b", false},
		{"tcp://host", false},
		{"host\x00", false},
		{strings.Repeat("x", 255), true},
		{strings.Repeat("x", 256), false},
	}
	for _, c := range cases {
		err := ValidateServer(c.in, 255)
		if c.ok {
			assert.NoError(t, err, "in=%q", c.in)
		} else {
			assert.True(t, errors.IsNotValid(err), "in=%q err=%v", c.in, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidatePassword("abc!~", 10))
	assert.Error(t, ValidatePassword("abc def", 10))
	assert.Error(t, ValidatePassword("пароль", 100))
	assert.Error(t, ValidatePassword("12345678901", 10))
}
