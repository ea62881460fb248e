// Package room provides per-room settings types.
package room

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Mode is a room's autoplay policy.
type Mode int

const (
	ModeNone    Mode = iota // Autoplay disabled
	ModeRandom              // Refill with a random track
	ModeSimilar             // Refill with a track similar to the one that just finished
)

// ErrInvalidMode is returned by ParseMode for unknown names.
var ErrInvalidMode = errors.New("invalid autoplay mode")

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeRandom:
		return "random"
	case ModeSimilar:
		return "similar"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. The empty string is ModeNone.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ModeNone, nil
	case "random":
		return ModeRandom, nil
	case "similar":
		return ModeSimilar, nil
	default:
		return ModeNone, errors.Wrapf(ErrInvalidMode, "%q", s)
	}
}
