package mode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned when a mode string matches no known persona.
var ErrInvalidMode = errors.New("invalid mode")

// Mode switches the assistant persona and sampling temperature.
type Mode string

const (
	Analytical Mode = "analytical"
	Playful    Mode = "playful"
)

// Default is the mode a new session starts in.
const Default = Analytical

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case Analytical, Playful:
		return true
	default:
		return false
	}
}

// Parse normalizes raw into a Mode. The legacy client names "regular" and
// "fun" are accepted as aliases.
func Parse(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "analytical", "regular":
		return Analytical, nil
	case "playful", "fun":
		return Playful, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}
