package player

import (
	"errors"
	"fmt"
)

// Kind classifies player errors by how the session reacts to them.
type Kind int

const (
	// KindTransport: an out-of-band request (the duration probe) failed.
	// Non-fatal; the affected value stays unknown.
	KindTransport Kind = iota + 1
	// KindMedia: the element failed to load or decode. Fatal unless it
	// happened during a track or source switch, which is rolled back.
	KindMedia
	// KindUnsupported: the page or source lacks a capability.
	KindUnsupported
	// KindRaceDiscard: an async result arrived after its session or
	// source went away. Never surfaced.
	KindRaceDiscard
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMedia:
		return "media"
	case KindUnsupported:
		return "unsupported"
	case KindRaceDiscard:
		return "race-discard"
	default:
		return "unknown"
	}
}

// Sentinels matched by Error.Is.
var (
	ErrTransport   = errors.New("player: transport failure")
	ErrMedia       = errors.New("player: media failure")
	ErrUnsupported = errors.New("player: unsupported")
	ErrRaceDiscard = errors.New("player: stale result discarded")
	ErrClosed      = errors.New("player: session closed")
)

// Error is a classified player failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrMedia:
		return e.Kind == KindMedia
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	case ErrRaceDiscard:
		return e.Kind == KindRaceDiscard
	}
	return false
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
