package player

import (
	"math"

	"github.com/mohaanymo/rainbow/internal/models"
)

// RangeRect is a buffered range positioned on the scrub track, in percent
// of the track width.
type RangeRect struct {
	LeftPct  float64
	WidthPct float64
}

// ScrubCallbacks connect a Scrub to its owner.
type ScrubCallbacks struct {
	// Start pauses playback and reports whether it was already paused.
	Start func(fraction float64) (wasPaused bool)
	Move  func(fraction float64)
	// End seeks to fraction and resumes playback when resume is set.
	End func(fraction float64, resume bool)
}

// Scrub is the seek bar: a handle on a track plus buffered-range rects.
// Positions are pixels from the track's left edge. The handle travels
// over [0, track-handle], so that span is one unit of media progress.
type Scrub struct {
	cb ScrubCallbacks

	pixelsPerUnit float64
	handleX       float64
	rects         []RangeRect

	dragging  bool
	wasPaused bool
}

// NewScrub creates an unmeasured scrub control.
func NewScrub(cb ScrubCallbacks) *Scrub {
	return &Scrub{cb: cb}
}

// Init measures the track. It must be called again whenever the layout
// changes; the handle keeps its fractional position.
func (s *Scrub) Init(trackPx, handlePx float64) {
	frac := s.Fraction()
	s.pixelsPerUnit = math.Max(0, trackPx-handlePx)
	s.handleX = frac * s.pixelsPerUnit
}

// PixelsPerUnit is the handle travel in pixels.
func (s *Scrub) PixelsPerUnit() float64 {
	return s.pixelsPerUnit
}

// HandleX is the handle offset in pixels; the played bar has this width.
func (s *Scrub) HandleX() float64 {
	return s.handleX
}

// Fraction is the handle position as a fraction of the travel.
func (s *Scrub) Fraction() float64 {
	if s.pixelsPerUnit <= 0 {
		return 0
	}
	return clamp01(s.handleX / s.pixelsPerUnit)
}

// Dragging reports whether a drag is in progress.
func (s *Scrub) Dragging() bool {
	return s.dragging
}

// SetPosition moves the handle to current/duration. It is ignored while
// dragging and when duration is unknown.
func (s *Scrub) SetPosition(current, duration float64) {
	if s.dragging || !knownDuration(duration) {
		return
	}
	s.handleX = clamp01(current/duration) * s.pixelsPerUnit
}

// SetBufferedRanges rebuilds the rects from ranges on a timeline of the
// given duration. Rects are clipped to the track. Unknown duration yields
// no rects.
func (s *Scrub) SetBufferedRanges(ranges []models.BufferedRange, duration float64) []RangeRect {
	s.rects = s.rects[:0]
	if !knownDuration(duration) {
		return nil
	}
	for _, r := range models.NormalizeRanges(ranges) {
		left := clamp01(r.Start/duration) * 100
		right := clamp01(r.End/duration) * 100
		if right <= left {
			continue
		}
		s.rects = append(s.rects, RangeRect{LeftPct: left, WidthPct: right - left})
	}
	return s.Rects()
}

// Rects returns a copy of the current rects.
func (s *Scrub) Rects() []RangeRect {
	if len(s.rects) == 0 {
		return nil
	}
	return append([]RangeRect(nil), s.rects...)
}

// PointerDown starts a drag: playback is paused, and the handle jumps to x.
func (s *Scrub) PointerDown(x float64) {
	if s.dragging {
		return
	}
	s.dragging = true
	s.handleX = s.clampX(x)
	s.wasPaused = true
	if s.cb.Start != nil {
		s.wasPaused = s.cb.Start(s.Fraction())
	}
}

// PointerMove moves the handle during a drag.
func (s *Scrub) PointerMove(x float64) {
	if !s.dragging {
		return
	}
	s.handleX = s.clampX(x)
	if s.cb.Move != nil {
		s.cb.Move(s.Fraction())
	}
}

// PointerUp ends a drag, seeking to the handle position and resuming if
// playback was running when the drag began.
func (s *Scrub) PointerUp() {
	if !s.dragging {
		return
	}
	s.dragging = false
	if s.cb.End != nil {
		s.cb.End(s.Fraction(), !s.wasPaused)
	}
}

// Cancel abandons a drag without seeking.
func (s *Scrub) Cancel() {
	s.dragging = false
}

func (s *Scrub) clampX(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, 0), s.pixelsPerUnit)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Min(math.Max(f, 0), 1)
}

func knownDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
