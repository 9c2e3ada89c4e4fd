package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Custom WPM bounds.
const (
	MinWPM = 10
	MaxWPM = 300
)

const customPrefix = "custom:"

// SpeedProfile is a named typing cadence or a custom words-per-minute rate.
type SpeedProfile struct {
	Name string `json:"name"`
	WPM  int    `json:"wpm"`
}

// Named profiles.
var (
	Slow   = SpeedProfile{Name: "slow", WPM: 35}
	Medium = SpeedProfile{Name: "medium", WPM: 60}
	Fast   = SpeedProfile{Name: "fast", WPM: 90}
)

// NamedProfiles returns the built-in profiles, slowest first.
func NamedProfiles() []SpeedProfile {
	return []SpeedProfile{Slow, Medium, Fast}
}

// CustomProfile returns a profile typing at wpm words per minute.
func CustomProfile(wpm int) (SpeedProfile, error) {
	p := SpeedProfile{Name: "custom", WPM: wpm}
	if err := p.Validate(); err != nil {
		return SpeedProfile{}, err
	}
	return p, nil
}

// ParseProfile accepts "slow", "medium", "fast", "custom:<wpm>" or a bare WPM number.
func ParseProfile(s string) (SpeedProfile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range NamedProfiles() {
		if s == p.Name {
			return p, nil
		}
	}

	raw := strings.TrimPrefix(s, customPrefix)
	wpm, err := strconv.Atoi(raw)
	if err != nil {
		return SpeedProfile{}, fmt.Errorf("%w: %q", ErrInvalidProfile, s)
	}
	return CustomProfile(wpm)
}

// Validate checks that p is a named profile or a custom profile in range.
func (p SpeedProfile) Validate() error {
	for _, named := range NamedProfiles() {
		if p == named {
			return nil
		}
	}
	if p.Name != "custom" {
		return fmt.Errorf("%w: unknown profile %q", ErrInvalidProfile, p.Name)
	}
	if p.WPM < MinWPM || p.WPM > MaxWPM {
		return fmt.Errorf("%w: wpm %d outside %d-%d", ErrInvalidProfile, p.WPM, MinWPM, MaxWPM)
	}
	return nil
}

// String returns the form ParseProfile accepts.
func (p SpeedProfile) String() string {
	if p.Name == "custom" {
		return customPrefix + strconv.Itoa(p.WPM)
	}
	return p.Name
}
