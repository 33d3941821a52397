package button

import (
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	cases := []struct {
		profile Profile
		held    time.Duration
		expect  Gesture
	}{
		{ProfileWPS, 0, GestureShortPress},
		{ProfileWPS, ms(100), GestureShortPress},
		{ProfileWPS, ms(2999), GestureShortPress},
		{ProfileWPS, ms(3000), GesturePairing},
		{ProfileWPS, ms(9999), GesturePairing},
		{ProfileWPS, ms(10000), GestureForgetNetwork},
		{ProfileWPS, ms(15000), GestureFactoryReset},
		{ProfileWPS, ms(16000), GestureFactoryReset},
		{ProfileWPS, time.Hour, GestureFactoryReset},
		{ProfilePortal, 0, GestureShortPress},
		{ProfilePortal, ms(5000), GestureShortPress},
		{ProfilePortal, ms(10001), GestureFactoryReset},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%s/%v", c.profile.Name, c.held), func(t *testing.T) {
			assert.Equal(t, c.expect, c.profile.Classify(c.held))
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	t.Parallel()
	for _, p := range []Profile{ProfileWPS, ProfilePortal} {
		prev := p.Classify(0)
		assert.Equal(t, GestureShortPress, prev)
		for held := time.Duration(0); held <= 20*time.Second; held += 50 * time.Millisecond {
			g := p.Classify(held)
			require.True(t, g >= prev, "profile=%s held=%v g=%s prev=%s", p.Name, held, g.String(), prev.String())
			prev = g
		}
	}
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ProfileWPS.Validate())
	assert.NoError(t, ProfilePortal.Validate())

	cases := []struct {
		name string
		p    Profile
	}{
		{"empty", Profile{Name: "x"}},
		{"order", Profile{Name: "x", Tiers: []Tier{{2 * time.Second, GesturePairing}, {time.Second, GestureFactoryReset}}}},
		{"equal", Profile{Name: "x", Tiers: []Tier{{time.Second, GesturePairing}, {time.Second, GestureFactoryReset}}}},
		{"zero", Profile{Name: "x", Tiers: []Tier{{0, GestureFactoryReset}}}},
		{"short-press-tier", Profile{Name: "x", Tiers: []Tier{{time.Second, GestureShortPress}}}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			err := c.p.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsNotValid(err), errors.ErrorStack(err))
		})
	}
}

func TestProfileWithHold(t *testing.T) {
	t.Parallel()
	p, err := ProfileWPS.WithHold(GesturePairing, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, p.Tiers[0].Hold)
	assert.Equal(t, 3*time.Second, ProfileWPS.Tiers[0].Hold)

	_, err = ProfilePortal.WithHold(GesturePairing, time.Second)
	assert.True(t, errors.IsNotFound(err))
}

func TestProfileByName(t *testing.T) {
	t.Parallel()
	p, err := ProfileByName("portal")
	require.NoError(t, err)
	assert.Equal(t, ProfilePortal, p)
	_, err = ProfileByName("")
	assert.Error(t, err)

	g, err := ParseGesture("forget_network")
	require.NoError(t, err)
	assert.Equal(t, GestureForgetNetwork, g)
	_, err = ParseGesture("short_press")
	assert.Error(t, err)
}
