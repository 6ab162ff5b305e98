package sundaerooms

import (
	"fmt"
	"slices"
	"strings"
)

// Mode selects how the target set of an emit is resolved.
type Mode int

const (
	// ModeNone is the zero value; emitting with it does nothing.
	ModeNone Mode = iota
	// ModeBroadcast targets every registered connection.
	ModeBroadcast
	// ModeTo targets members of the channels except the sender.
	ModeTo
	// ModeIn targets members of the channels including the sender.
	ModeIn
)

func (m Mode) String() string {
	switch m {
	case ModeBroadcast:
		return "broadcast"
	case ModeTo:
		return "to"
	case ModeIn:
		return "in"
	default:
		return "none"
	}
}

// ParseMode is the inverse of Mode.String. The empty string parses as
// ModeNone too.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "broadcast":
		return ModeBroadcast, nil
	case "to":
		return ModeTo, nil
	case "in":
		return ModeIn, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Addressing is an immutable description of who an emit goes to. Build one
// with Broadcast, To or In; the zero value addresses nobody.
type Addressing struct {
	mode     Mode
	channels []string
}

func Broadcast() Addressing {
	return Addressing{mode: ModeBroadcast}
}

// To addresses the members of any of channels, excluding the sender.
func To(channels ...string) Addressing {
	return Addressing{mode: ModeTo, channels: normalizeChannels(channels)}
}

// In addresses the members of any of channels, sender included.
func In(channels ...string) Addressing {
	return Addressing{mode: ModeIn, channels: normalizeChannels(channels)}
}

// NewAddressing builds an Addressing from a parsed mode, as received from a
// client message or a published envelope.
func NewAddressing(mode string, channels ...string) (Addressing, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Addressing{}, err
	}
	switch m {
	case ModeBroadcast:
		return Broadcast(), nil
	case ModeTo:
		return To(channels...), nil
	case ModeIn:
		return In(channels...), nil
	default:
		return Addressing{}, nil
	}
}

func (a Addressing) Mode() Mode {
	return a.mode
}

// Channels returns a copy of the normalized channel set.
func (a Addressing) Channels() []string {
	return slices.Clone(a.channels)
}

func (a Addressing) String() string {
	if a.mode == ModeBroadcast || a.mode == ModeNone {
		return a.mode.String()
	}
	return fmt.Sprintf("%v(%v)", a.mode, strings.Join(a.channels, ","))
}

// normalizeChannels turns a room list into a sorted set without empty names.
func normalizeChannels(channels []string) []string {
	return Distinct(channels, "")
}
