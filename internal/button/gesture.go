// Package button turns one digital input into user intents by hold duration.
package button

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureShortPress
	GesturePairing
	GestureForgetNetwork
	GestureFactoryReset
)

func (g Gesture) String() string {
	switch g {
	case GestureNone:
		return "none"
	case GestureShortPress:
		return "short_press"
	case GesturePairing:
		return "pairing"
	case GestureForgetNetwork:
		return "forget_network"
	case GestureFactoryReset:
		return "factory_reset"
	}
	return fmt.Sprintf("Gesture(%d)", uint8(g))
}

// ParseGesture accepts names used in config `tier "name" {}` blocks.
func ParseGesture(s string) (Gesture, error) {
	for g := GesturePairing; g <= GestureFactoryReset; g++ {
		if g.String() == s {
			return g, nil
		}
	}
	return GestureNone, errors.NotValidf("button gesture=%q", s)
}

// Tier is reached when hold duration exceeds Hold.
type Tier struct {
	Hold    time.Duration
	Gesture Gesture
}

func (t Tier) String() string { return fmt.Sprintf("%s>%v", t.Gesture.String(), t.Hold) }

// Profile is ordered list of tiers, strictly increasing Hold.
type Profile struct {
	Name  string
	Tiers []Tier
}

var (
	ProfileWPS = Profile{Name: "wps", Tiers: []Tier{
		{3000 * time.Millisecond, GesturePairing},
		{10000 * time.Millisecond, GestureForgetNetwork},
		{15000 * time.Millisecond, GestureFactoryReset},
	}}
	ProfilePortal = Profile{Name: "portal", Tiers: []Tier{
		{10000 * time.Millisecond, GestureFactoryReset},
	}}
)

func ProfileByName(name string) (Profile, error) {
	switch name {
	case ProfileWPS.Name:
		return ProfileWPS.clone(), nil
	case ProfilePortal.Name:
		return ProfilePortal.clone(), nil
	}
	return Profile{}, errors.NotValidf("button profile=%q (valid: %s, %s)", name, ProfileWPS.Name, ProfilePortal.Name)
}

func (p Profile) Validate() error {
	if len(p.Tiers) == 0 {
		return errors.NotValidf("button profile=%s no tiers", p.Name)
	}
	var prev time.Duration
	for i, t := range p.Tiers {
		switch t.Gesture {
		case GesturePairing, GestureForgetNetwork, GestureFactoryReset:
		default:
			return errors.NotValidf("button profile=%s tier=%d gesture=%s", p.Name, i, t.Gesture.String())
		}
		if t.Hold <= prev {
			return errors.NotValidf("button profile=%s tier=%d hold=%v must be greater than %v", p.Name, i, t.Hold, prev)
		}
		prev = t.Hold
	}
	return nil
}

// WithHold returns copy of profile with hold of gesture tier replaced.
func (p Profile) WithHold(g Gesture, hold time.Duration) (Profile, error) {
	q := p.clone()
	for i := range q.Tiers {
		if q.Tiers[i].Gesture == g {
			q.Tiers[i].Hold = hold
			return q, nil
		}
	}
	return p, errors.NotFoundf("button profile=%s gesture=%s", p.Name, g.String())
}

// Classify returns gesture of highest tier with Hold <= held,
// short press below first tier.
func (p Profile) Classify(held time.Duration) Gesture {
	g := GestureShortPress
	for _, t := range p.Tiers {
		if t.Hold <= held {
			g = t.Gesture
		}
	}
	return g
}

func (p Profile) clone() Profile {
	q := p
	q.Tiers = append([]Tier(nil), p.Tiers...)
	return q
}
