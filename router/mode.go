package router

import (
	"fmt"

	"github.com/xraph/hail"
)

// Mode selects how the router picks an outbound channel.
type Mode string

const (
	// ModeAuto lets the router decide per channel health. The default.
	ModeAuto Mode = "auto"
	// ModePrimaryOnly forces the primary channel regardless of health.
	ModePrimaryOnly Mode = "primary-only"
	// ModeSecondaryOnly forces the secondary channel regardless of
	// health.
	ModeSecondaryOnly Mode = "secondary-only"
)

// ParseMode validates an operator-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModePrimaryOnly, ModeSecondaryOnly:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", hail.ErrInvalidMode, s)
	}
}

// Forced reports whether the mode pins a specific channel.
func (m Mode) Forced() bool {
	return m == ModePrimaryOnly || m == ModeSecondaryOnly
}
