package player

// View is a declarative snapshot of everything a host renders.
type View struct {
	SessionID string
	State     State
	Err       string
	Notice    string

	ControlsShown bool
	Paused        bool
	Muted         bool
	Looping       bool

	// Times are on the media timeline, offset included. Duration is 0
	// while unknown.
	CurrentTime   float64
	Duration      float64
	CurrentLabel  string
	DurationLabel string

	// Scrub geometry in pixels from the track's left edge.
	HandleX  float64
	Buffered []RangeRect
	Dragging bool

	Fullscreen          bool
	FullscreenAvailable bool

	AlternateAvailable bool
	AlternateActive    bool
	SwitchPending      bool

	TrackSelectable bool
	Tracks          []TrackOption

	Poster    string
	Subtitles string
}
