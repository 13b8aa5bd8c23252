// Package media provides the playable elements the player drives: a
// progressive HTTP stream and an adaptive DASH/HLS presentation. Decoding
// and rendering are out of scope; elements model loading, buffering,
// timing and track state and report them through events.
package media

import (
	"errors"

	"github.com/mohaanymo/rainbow/internal/models"
)

// Element errors.
var (
	ErrUnloaded                 = errors.New("media: element unloaded")
	ErrNoSource                 = errors.New("media: no source loaded")
	ErrUnknownTrack             = errors.New("media: unknown track")
	ErrNoPlayableRepresentation = errors.New("media: no playable representation")
)

// EventType identifies an element lifecycle event.
type EventType int

const (
	EventLoadedMetadata EventType = iota
	EventProgress
	EventCanPlayThrough
	EventError
	// EventTracksLoaded fires once an adaptive manifest's tracks are known.
	EventTracksLoaded
	EventEnded
)

func (t EventType) String() string {
	switch t {
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventProgress:
		return "progress"
	case EventCanPlayThrough:
		return "canplaythrough"
	case EventError:
		return "error"
	case EventTracksLoaded:
		return "tracksloaded"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Src is the source the event belongs
// to, so listeners can discard events from a replaced source.
type Event struct {
	Type EventType
	Src  string
	Err  error
}

// Element is a seekable, buffering media pipeline. Methods never block on
// the network; results arrive as events, always on a goroutine other than
// the caller's.
type Element interface {
	// Load replaces the current source and starts loading it.
	Load(src string)
	Src() string
	Play()
	Pause()
	Paused() bool
	// CurrentTime is the playhead in seconds on the element's own clock.
	CurrentTime() float64
	Seek(t float64)
	// Duration is NaN while unknown.
	Duration() float64
	Buffered() []models.BufferedRange
	SetMuted(muted bool)
	SetLoop(loop bool)
	Subscribe(fn func(Event)) (cancel func())
	// Unload stops all loading and releases the element for good.
	Unload()
}

// AdaptiveElement is an Element playing a multi-track manifest.
type AdaptiveElement interface {
	Element
	TracksFor(kind models.TrackKind) []*models.Track
	CurrentTrackFor(kind models.TrackKind) *models.Track
	SetCurrentTrack(kind models.TrackKind, id string) error
	// SetRepresentationFilter restricts which representations may be
	// selected. It applies to every later selection.
	SetRepresentationFilter(accept func(models.Representation) bool)
}
