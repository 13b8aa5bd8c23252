package player

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
)

// Source names which of a descriptor's sources is playing.
type Source int

const (
	SourceOrigin Source = iota
	SourceAlternate
)

func (s Source) String() string {
	if s == SourceAlternate {
		return "alternate"
	}
	return "origin"
}

// SourceSwitcher swaps between the origin source and a live-transcoded
// alternate. The alternate stream starts at the requested position, so
// its element clock runs from zero and Offset maps it back onto the
// media timeline.
type SourceSwitcher struct {
	desc models.MediaDescriptor
	el   media.Element

	active  Source
	offset  float64
	pending bool

	// restoreAt is re-applied once the origin reports metadata; <0 means none.
	restoreAt float64

	reverting bool
	prev      struct {
		active Source
		offset float64
		at     float64
	}
}

// NewSourceSwitcher starts on the origin source.
func NewSourceSwitcher(desc models.MediaDescriptor, el media.Element) *SourceSwitcher {
	return &SourceSwitcher{desc: desc, el: el, restoreAt: -1}
}

// Available reports whether toggling can do anything for this source.
func (s *SourceSwitcher) Available() bool {
	return s.desc.CanSwitchEncoding()
}

// Active returns the playing source.
func (s *SourceSwitcher) Active() Source { return s.active }

// Offset is added to the element clock to get media time.
func (s *SourceSwitcher) Offset() float64 { return s.offset }

// Pending reports whether a switch awaits its first load event.
func (s *SourceSwitcher) Pending() bool { return s.pending }

// RestorePosition is the media time a pending return to the origin will
// seek to once loaded.
func (s *SourceSwitcher) RestorePosition() (float64, bool) {
	if !s.pending || s.active != SourceOrigin || s.restoreAt <= 0 {
		return 0, false
	}
	return s.restoreAt, true
}

// Toggle switches source at media time at. It reports false when the
// switch is unavailable or another one is still pending.
func (s *SourceSwitcher) Toggle(at float64) bool {
	if !s.Available() || s.pending {
		return false
	}
	s.prev.active, s.prev.offset, s.prev.at = s.active, s.offset, at
	s.reverting = false
	if s.active == SourceOrigin {
		s.switchTo(SourceAlternate, at)
	} else {
		s.switchTo(SourceOrigin, at)
	}
	return true
}

func (s *SourceSwitcher) switchTo(target Source, at float64) {
	s.pending = true
	s.active = target
	if target == SourceAlternate {
		s.offset = at
		s.restoreAt = -1
		s.el.Load(withSeek(s.desc.AlternateURL, at))
		return
	}
	s.offset = 0
	s.restoreAt = at
	s.el.Load(s.desc.SourceURL)
}

// SeekAlternate reloads the alternate stream at media time at. It reports
// false when the origin is active or looping is on; the caller then seeks
// the element directly.
func (s *SourceSwitcher) SeekAlternate(at float64, looping bool) bool {
	if s.active != SourceAlternate || looping {
		return false
	}
	s.offset = at
	s.restoreAt = -1
	s.el.Load(withSeek(s.desc.AlternateURL, at))
	return true
}

// Retarget replaces the position a pending return to the origin will
// restore, so a seek made while loading is not undone.
func (s *SourceSwitcher) Retarget(at float64) {
	if s.pending && s.active == SourceOrigin {
		s.restoreAt = at
	}
}

// Loaded handles loadedmetadata/canplaythrough of the current source. It
// clears the pending flag and re-applies the saved position when back on
// the origin.
func (s *SourceSwitcher) Loaded() {
	s.pending = false
	s.reverting = false
	if s.active == SourceOrigin && s.restoreAt > 0 {
		s.el.Seek(s.restoreAt)
	}
	s.restoreAt = -1
}

// Failed handles an element error. While a switch is pending it reverts to
// the previous source and reports true; otherwise, or when the revert
// itself failed, it reports false and the error is fatal.
func (s *SourceSwitcher) Failed() bool {
	if !s.pending || s.reverting {
		return false
	}
	s.reverting = true
	s.switchTo(s.prev.active, s.prev.at)
	return true
}

// withSeek sets the seek query parameter, in seconds.
func withSeek(rawURL string, at float64) string {
	seek := strconv.FormatFloat(at, 'f', -1, 64)
	u, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + "seek=" + seek
	}
	q := u.Query()
	q.Set("seek", seek)
	u.RawQuery = q.Encode()
	return u.String()
}
