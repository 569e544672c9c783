package core

import (
	"fmt"
	"strings"
)

// Mode selects how an invocation is dispatched.
type Mode int

const (
	// ModeSync loads actor state, runs the handler and returns its result.
	ModeSync Mode = iota + 1
	// ModeAsync hands the raw event to the handler and always acknowledges.
	ModeAsync
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a wire name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync":
		return ModeSync, nil
	case "async":
		return ModeAsync, nil
	default:
		return 0, ErrValidation(CodeInvalidMode, fmt.Sprintf("unknown invocation mode %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeSync && m != ModeAsync {
		return nil, ErrValidation(CodeInvalidMode, m.String())
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Invocation is one request to run an actor handler.
type Invocation struct {
	ActorID string  `json:"actorId"`
	Payload Payload `json:"payload"`
	Mode    Mode    `json:"mode"`
	// EventID identifies the originating queue message or bus event, if any.
	EventID string `json:"eventId,omitempty"`
	// Source names where the invocation came from (queue, bus source, http).
	Source string `json:"source,omitempty"`
}
