package rainbow

import (
	"github.com/mohaanymo/rainbow/internal/capability"
	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/player"
)

// Controller types shared with hosts.
type (
	Session    = player.Session
	View       = player.View
	State      = player.State
	Page       = player.Page
	PageState  = player.PageState
	Input      = player.Input
	InputKind  = player.InputKind
	RangeRect  = player.RangeRect
	Descriptor = models.MediaDescriptor
	TrackKind  = models.TrackKind
	Tier       = capability.Tier
)

// Compatibility tiers.
const (
	TierBest    = capability.TierBest
	TierModern  = capability.TierModern
	TierBasic   = capability.TierBasic
	TierMinimal = capability.TierMinimal
)

// Session states.
const (
	StateInitializing = player.StateInitializing
	StateLoading      = player.StateLoading
	StatePlaying      = player.StatePlaying
	StatePaused       = player.StatePaused
	StateError        = player.StateError
	StateClosed       = player.StateClosed
)

// Page inputs.
const (
	InputKeyUp            = player.InputKeyUp
	InputResize           = player.InputResize
	InputFullscreenChange = player.InputFullscreenChange
	InputPointerMove      = player.InputPointerMove
	InputPointerUp        = player.InputPointerUp
)

// Track kinds offered for selection.
const (
	KindVideo = models.KindVideo
	KindAudio = models.KindAudio
)

// Errors matched with errors.Is against session results.
var (
	ErrTransport   = player.ErrTransport
	ErrMedia       = player.ErrMedia
	ErrUnsupported = player.ErrUnsupported
	ErrRaceDiscard = player.ErrRaceDiscard
	ErrClosed      = player.ErrClosed
)

// FormatClock renders seconds as "m:ss".
func FormatClock(seconds float64) string {
	return player.FormatClock(seconds)
}
