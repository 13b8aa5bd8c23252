// Package player implements the playback controller: a session that keeps
// the scrub control, control overlay, track selection and source
// switching in step with an asynchronous media element.
package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mohaanymo/rainbow/internal/capability"
	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
)

// DefaultPollInterval samples the element at 8 Hz while playing.
const DefaultPollInterval = time.Second / 8

// DurationProber resolves a media duration out of band.
type DurationProber interface {
	ProbeDuration(ctx context.Context, desc models.MediaDescriptor) (float64, error)
}

// Options configures a Session.
type Options struct {
	Descriptor models.MediaDescriptor
	Element    media.Element
	Page       Page

	// Prober is optional; without it, or without a probe URL on the
	// descriptor, duration comes from the element only.
	Prober DurationProber
	// Tier bounds adaptive representation selection; 0 means the default.
	Tier   capability.Tier
	Clock  Clock
	Logger zerolog.Logger

	InactivityTimeout time.Duration
	PollInterval      time.Duration
	Touch             bool
	NoAutoplay        bool
	// Muted is the initial mute flag.
	Muted bool

	// Measure returns the scrub track and handle widths in pixels.
	Measure func() (trackPx, handlePx float64)

	// OnChange receives a fresh view after every state change. OnClosed
	// fires once, after the final OnChange. Both run without the session
	// lock held and may call back into the session.
	OnChange func(View)
	OnClosed func()
}

// Session is one open playback of one descriptor. All inputs (host calls,
// element events, timers and the probe result) are serialized by a single
// mutex.
type Session struct {
	opts  Options
	id    string
	log   zerolog.Logger
	el    media.Element
	page  Page
	clock Clock

	mu           sync.Mutex
	state        State
	started      bool
	resumeOnLoad bool
	muted        bool
	looping      bool
	duration     float64
	errMsg       string
	notice       string
	fullscreen   bool
	saved        PageState

	scrub  *Scrub
	vis    *Visibility
	tracks *TrackCoordinator
	source *SourceSwitcher

	detach     []func()
	dragDetach []func()
	pollTimer  Timer
	pollGen    int

	ctx    context.Context
	cancel context.CancelFunc

	pendingViews []View
	closedNotify bool
}

// NewSession validates opts and builds an unstarted session.
func NewSession(opts Options) (*Session, error) {
	if opts.Element == nil {
		return nil, errors.New("player: options need an element")
	}
	if opts.Page == nil {
		return nil, errors.New("player: options need a page")
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Tier == 0 {
		opts.Tier = capability.DefaultTier
	}
	opts.Tier = opts.Tier.Clamp()
	if opts.Measure == nil {
		opts.Measure = func() (float64, float64) { return 100, 0 }
	}

	id := uuid.NewString()
	s := &Session{
		opts:     opts,
		id:       id,
		log:      opts.Logger.With().Str("component", "player").Str("session_id", id).Logger(),
		el:       opts.Element,
		page:     opts.Page,
		clock:    opts.Clock,
		muted:    opts.Muted,
		duration: math.NaN(),
	}
	s.scrub = NewScrub(ScrubCallbacks{
		Start: s.scrubStartLocked,
		Move:  func(float64) {},
		End:   s.scrubEndLocked,
	})
	s.vis = NewVisibility(opts.InactivityTimeout, opts.Touch, s.arm)
	s.source = NewSourceSwitcher(opts.Descriptor, opts.Element)
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offset returns the active source's offset in seconds.
func (s *Session) Offset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Offset()
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Start attaches the session to the page and element and begins loading.
// ctx bounds the session's background work; cancelling it does not close
// the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.saved = s.page.State()
	s.fullscreen = s.saved.Fullscreen
	open := s.saved
	open.Overflow = OverflowHidden
	open.TouchAction = TouchActionNone
	s.page.SetState(open)

	s.detach = append(s.detach,
		s.page.Listen(InputKeyUp, s.onKey),
		s.page.Listen(InputResize, s.onLayout),
		s.page.Listen(InputFullscreenChange, s.onFullscreenChange),
		s.el.Subscribe(s.onEvent),
	)

	if s.opts.Descriptor.Adaptive() {
		if ae, ok := s.el.(media.AdaptiveElement); ok {
			ae.SetRepresentationFilter(capability.Filter(s.opts.Tier))
			s.tracks = NewTrackCoordinator(ae)
		} else {
			s.log.Warn().Msg("adaptive source on a non-adaptive element; track selection disabled")
		}
	}

	s.remeasureLocked()
	s.vis.Activity()
	s.el.SetMuted(s.muted)
	s.el.SetLoop(s.looping)

	s.state = StateLoading
	s.resumeOnLoad = !s.opts.NoAutoplay
	s.el.Load(s.opts.Descriptor.SourceURL)

	if s.opts.Prober != nil && s.opts.Descriptor.ProbeURL != "" {
		go s.probe(s.ctx)
	}

	s.log.Info().
		Str("src", s.opts.Descriptor.SourceURL).
		Bool("adaptive", s.opts.Descriptor.Adaptive()).
		Int("tier", int(s.opts.Tier)).
		Msg("session started")
	s.unlockAndNotify()
	return nil
}

// Play starts or resumes playback.
func (s *Session) Play() error {
	s.mu.Lock()
	if !s.state.Open() || s.state == StateInitializing {
		s.mu.Unlock()
		return ErrClosed
	}
	s.playLocked()
	s.unlockAndNotify()
	return nil
}

// Pause pauses playback and reports whether it was already paused.
func (s *Session) Pause() (wasPaused bool) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return true
	}
	wasPaused = s.pauseLocked()
	s.unlockAndNotify()
	return wasPaused
}

// TogglePlayPause flips between playing and paused.
func (s *Session) TogglePlayPause() {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.togglePlayPauseLocked()
	s.unlockAndNotify()
}

// Seek jumps to fraction (clamped to [0,1]) of the duration. It does
// nothing while the duration is unknown.
func (s *Session) Seek(fraction float64) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.seekLocked(fraction)
	s.unlockAndNotify()
}

// MuteToggle flips the mute flag.
func (s *Session) MuteToggle() {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.muted = !s.muted
	s.el.SetMuted(s.muted)
	s.unlockAndNotify()
}

// LoopToggle flips looping.
func (s *Session) LoopToggle() {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.looping = !s.looping
	s.el.SetLoop(s.looping)
	s.unlockAndNotify()
}

// RequestFullscreen asks the page for fullscreen. The view follows once
// the page reports the change.
func (s *Session) RequestFullscreen() error {
	return s.fullscreenCall("request fullscreen", Page.RequestFullscreen)
}

// ExitFullscreen leaves fullscreen.
func (s *Session) ExitFullscreen() error {
	return s.fullscreenCall("exit fullscreen", Page.ExitFullscreen)
}

// ToggleFullscreen requests or exits fullscreen based on the current state.
func (s *Session) ToggleFullscreen() error {
	s.mu.Lock()
	fs := s.fullscreen
	s.mu.Unlock()
	if fs {
		return s.ExitFullscreen()
	}
	return s.RequestFullscreen()
}

func (s *Session) fullscreenCall(op string, call func(Page) error) error {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return ErrClosed
	}
	var err error
	if !s.page.FullscreenSupported() {
		err = newError(KindUnsupported, op, nil)
	} else if cerr := call(s.page); cerr != nil {
		err = newError(KindUnsupported, op, cerr)
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("fullscreen unavailable")
	}
	s.unlockAndNotify()
	return err
}

// ToggleAlternate switches between the origin and the alternate encoding
// at the current position. It is a no-op when no alternate applies or a
// switch is still pending.
func (s *Session) ToggleAlternate() error {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return ErrClosed
	}
	at := s.currentLocked()
	wasPlaying := s.playingLocked()
	if s.source.Toggle(at) {
		s.stopPollLocked()
		s.state = StateLoading
		s.resumeOnLoad = wasPlaying
		s.notice = ""
		s.log.Info().Stringer("source", s.source.Active()).Float64("at", at).Msg("switching source")
		s.syncScrubLocked()
	}
	s.unlockAndNotify()
	return nil
}

// logRejectedLocked reports video representations the tier filters out of
// the current track.
func (s *Session) logRejectedLocked() {
	ae, ok := s.el.(media.AdaptiveElement)
	if !ok {
		return
	}
	track := ae.CurrentTrackFor(models.KindVideo)
	if track == nil {
		return
	}
	if rejected := capability.Rejected(track.Representations, s.opts.Tier); len(rejected) > 0 {
		s.log.Debug().
			Str("track", track.ID).
			Int("rejected", len(rejected)).
			Int("offered", len(track.Representations)).
			Msg("representations filtered by tier")
	}
}

// SelectTrack switches an adaptive source's track. On failure the prior
// track stays current and the session stays open.
func (s *Session) SelectTrack(kind models.TrackKind, id string) error {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return ErrClosed
	}
	var err error
	if s.tracks == nil {
		err = newError(KindUnsupported, "select track", nil)
	} else if err = s.tracks.Select(kind, id); err != nil {
		s.notice = "track switch failed"
		s.log.Warn().Err(err).Str("kind", kind.String()).Str("track", id).Msg("track switch failed")
	} else {
		s.notice = ""
		s.syncScrubLocked()
	}
	s.unlockAndNotify()
	return err
}

// PointerDown starts a scrub drag at x pixels from the track's left edge.
func (s *Session) PointerDown(x float64) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.vis.Activity()
	s.scrub.PointerDown(x)
	s.unlockAndNotify()
}

// Activity records pointer movement, a click or a touch over the player.
func (s *Session) Activity() {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.vis.Activity()
	s.unlockAndNotify()
}

// Leave records the pointer leaving the player.
func (s *Session) Leave() {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.vis.Leave()
	s.unlockAndNotify()
}

// Close tears the session down and restores the page. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.closeLocked()
	s.unlockAndNotify()
}

var keyHandlers = map[string]func(*Session){
	"Escape": (*Session).closeLocked,
	"Space":  (*Session).togglePlayPauseLocked,
	" ":      (*Session).togglePlayPauseLocked,
}

func (s *Session) onKey(in Input) {
	s.mu.Lock()
	handler, ok := keyHandlers[in.Key]
	if !ok || !s.state.Open() {
		s.mu.Unlock()
		return
	}
	handler(s)
	s.unlockAndNotify()
}

func (s *Session) onLayout(Input) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.remeasureLocked()
	s.unlockAndNotify()
}

func (s *Session) onFullscreenChange(Input) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.fullscreen = s.page.State().Fullscreen
	s.remeasureLocked()
	s.unlockAndNotify()
}

func (s *Session) onDragMove(in Input) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.scrub.PointerMove(in.X)
	s.unlockAndNotify()
}

func (s *Session) onDragUp(Input) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	s.scrub.PointerUp()
	s.unlockAndNotify()
}

func (s *Session) onEvent(ev media.Event) {
	s.mu.Lock()
	if !s.state.Open() {
		s.mu.Unlock()
		return
	}
	if ev.Src != "" && ev.Src != s.el.Src() {
		s.mu.Unlock()
		s.log.Debug().Stringer("event", ev.Type).Str("src", ev.Src).Msg("event from replaced source dropped")
		return
	}

	switch ev.Type {
	case media.EventLoadedMetadata:
		s.setDurationLocked(s.el.Duration()+s.source.Offset(), "element")
		s.source.Loaded()
		s.syncScrubLocked()
	case media.EventTracksLoaded:
		if s.tracks != nil {
			s.tracks.Refresh()
			s.logRejectedLocked()
		}
	case media.EventProgress:
		// Metadata and the probe own the duration once known.
		if !knownDuration(s.duration) {
			s.setDurationLocked(s.el.Duration()+s.source.Offset(), "element")
		}
		s.syncScrubLocked()
	case media.EventCanPlayThrough:
		s.source.Loaded()
		if s.state == StateLoading {
			if s.resumeOnLoad {
				s.playLocked()
			} else {
				s.state = StatePaused
			}
		}
	case media.EventEnded:
		if !s.looping {
			s.stopPollLocked()
			s.state = StatePaused
			s.syncScrubLocked()
		}
	case media.EventError:
		s.mediaErrorLocked(ev.Err)
	}
	s.unlockAndNotify()
}

func (s *Session) mediaErrorLocked(err error) {
	if s.source.Failed() {
		s.stopPollLocked()
		s.state = StateLoading
		s.notice = "source switch failed"
		s.log.Warn().Err(err).Stringer("source", s.source.Active()).Msg("source switch failed, reverting")
		return
	}
	perr := newError(KindMedia, "load", err)
	s.log.Error().Err(perr).Msg("media error")
	s.errMsg = perr.Error()
	s.state = StateError
	s.pendingViews = append(s.pendingViews, s.viewLocked())
	s.closeLocked()
}

func (s *Session) probe(ctx context.Context) {
	d, err := s.opts.Prober.ProbeDuration(ctx, s.opts.Descriptor)

	s.mu.Lock()
	if s.state == StateClosed || ctx.Err() != nil {
		s.mu.Unlock()
		s.log.Debug().Err(newError(KindRaceDiscard, "probe", ErrClosed)).Msg("probe result discarded")
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Warn().Err(newError(KindTransport, "probe", err)).Msg("duration probe failed")
		return
	}
	s.setDurationLocked(d, "probe")
	s.syncScrubLocked()
	s.unlockAndNotify()
}

// setDurationLocked applies a media-timeline duration. The last valid
// value wins; an unknown value never replaces a known one.
func (s *Session) setDurationLocked(d float64, from string) {
	if !knownDuration(d) || d == s.duration {
		return
	}
	s.duration = d
	s.log.Debug().Float64("duration", d).Str("from", from).Msg("duration updated")
}

func (s *Session) playLocked() {
	s.el.Play()
	s.state = StatePlaying
	s.resumeOnLoad = true
	s.startPollLocked()
	s.syncScrubLocked()
}

func (s *Session) pauseLocked() (wasPaused bool) {
	wasPaused = !s.playingLocked()
	s.el.Pause()
	s.stopPollLocked()
	switch s.state {
	case StatePlaying:
		s.state = StatePaused
	case StateLoading:
		s.resumeOnLoad = false
	}
	s.syncScrubLocked()
	return wasPaused
}

// playingLocked reports playback, counting a load that will autoplay.
func (s *Session) playingLocked() bool {
	return s.state == StatePlaying || (s.state == StateLoading && s.resumeOnLoad)
}

func (s *Session) togglePlayPauseLocked() {
	if s.playingLocked() {
		s.pauseLocked()
		return
	}
	s.playLocked()
}

func (s *Session) seekLocked(fraction float64) {
	if !knownDuration(s.duration) {
		return
	}
	pos := clamp01(fraction) * s.duration
	if s.source.SeekAlternate(pos, s.looping) {
		s.resumeOnLoad = s.playingLocked()
		s.stopPollLocked()
		s.state = StateLoading
	} else {
		s.source.Retarget(pos)
		s.el.Seek(math.Max(0, pos-s.source.Offset()))
	}
	s.syncScrubLocked()
}

func (s *Session) scrubStartLocked(float64) bool {
	wasPaused := s.pauseLocked()
	s.vis.SetDragging(true)
	s.dragDetach = append(s.dragDetach,
		s.page.Listen(InputPointerMove, s.onDragMove),
		s.page.Listen(InputPointerUp, s.onDragUp),
	)
	return wasPaused
}

func (s *Session) scrubEndLocked(fraction float64, resume bool) {
	s.detachDragLocked()
	s.vis.SetDragging(false)
	s.vis.Activity()
	s.seekLocked(fraction)
	if !resume {
		return
	}
	if s.state == StateLoading {
		s.resumeOnLoad = true
		return
	}
	s.playLocked()
}

func (s *Session) detachDragLocked() {
	for _, cancel := range s.dragDetach {
		cancel()
	}
	s.dragDetach = nil
}

func (s *Session) closeLocked() {
	if s.state == StateClosed {
		return
	}
	s.stopPollLocked()
	s.vis.Stop()
	s.scrub.Cancel()
	s.detachDragLocked()
	for _, cancel := range s.detach {
		cancel()
	}
	s.detach = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.el.Pause()
	s.el.Unload()
	if s.started {
		s.page.SetState(s.saved)
		s.fullscreen = s.saved.Fullscreen
	}
	s.state = StateClosed
	s.closedNotify = true
	s.log.Info().Msg("session closed")
}

func (s *Session) startPollLocked() {
	s.stopPollLocked()
	gen := s.pollGen
	s.pollTimer = s.clock.AfterFunc(s.opts.PollInterval, func() { s.pollTick(gen) })
}

func (s *Session) stopPollLocked() {
	s.pollGen++
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
}

func (s *Session) pollTick(gen int) {
	s.mu.Lock()
	if gen != s.pollGen || s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.syncScrubLocked()
	s.startPollLocked()
	s.unlockAndNotify()
}

// arm schedules a visibility timer whose callback runs under the lock.
func (s *Session) arm(d time.Duration, fire func()) Timer {
	return s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if !s.state.Open() {
			s.mu.Unlock()
			return
		}
		fire()
		s.unlockAndNotify()
	})
}

func (s *Session) remeasureLocked() {
	track, handle := s.opts.Measure()
	s.scrub.Init(track, handle)
	s.syncScrubLocked()
}

// syncScrubLocked moves the handle and rebuilds the buffered rects.
// Element ranges are shifted by the offset onto the media timeline.
func (s *Session) syncScrubLocked() {
	offset := s.source.Offset()
	s.scrub.SetPosition(s.currentLocked(), s.duration)
	ranges := s.el.Buffered()
	shifted := make([]models.BufferedRange, len(ranges))
	for i, r := range ranges {
		shifted[i] = r.Shift(offset)
	}
	s.scrub.SetBufferedRanges(shifted, s.duration)
}

// currentLocked is the media time: element clock plus offset, clamped to
// the duration once known.
func (s *Session) currentLocked() float64 {
	if at, ok := s.source.RestorePosition(); ok {
		return at
	}
	t := s.el.CurrentTime() + s.source.Offset()
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if knownDuration(s.duration) && t > s.duration {
		t = s.duration
	}
	return t
}

func (s *Session) viewLocked() View {
	dur := 0.0
	if knownDuration(s.duration) {
		dur = s.duration
	}
	cur := s.currentLocked()
	if s.scrub.Dragging() && dur > 0 {
		cur = s.scrub.Fraction() * dur
	}

	v := View{
		SessionID:           s.id,
		State:               s.state,
		Err:                 s.errMsg,
		Notice:              s.notice,
		ControlsShown:       s.vis.Shown(),
		Paused:              s.state != StatePlaying,
		Muted:               s.muted,
		Looping:             s.looping,
		CurrentTime:         cur,
		Duration:            dur,
		CurrentLabel:        FormatClock(cur),
		DurationLabel:       FormatClock(dur),
		HandleX:             s.scrub.HandleX(),
		Buffered:            s.scrub.Rects(),
		Dragging:            s.scrub.Dragging(),
		Fullscreen:          s.fullscreen,
		FullscreenAvailable: s.page.FullscreenSupported(),
		AlternateAvailable:  s.source.Available(),
		AlternateActive:     s.source.Active() == SourceAlternate,
		SwitchPending:       s.source.Pending(),
		Poster:              s.opts.Descriptor.PosterURL,
		Subtitles:           s.opts.Descriptor.SubtitlesURL,
	}
	if s.tracks != nil {
		v.TrackSelectable = s.tracks.Selectable()
		v.Tracks = s.tracks.Surface()
	}
	return v
}

// unlockAndNotify releases the lock, then delivers views and the close
// notification.
func (s *Session) unlockAndNotify() {
	views := append(s.pendingViews, s.viewLocked())
	s.pendingViews = nil
	closed := s.closedNotify
	s.closedNotify = false
	onChange, onClosed := s.opts.OnChange, s.opts.OnClosed
	s.mu.Unlock()

	if onChange != nil {
		for _, v := range views {
			onChange(v)
		}
	}
	if closed && onClosed != nil {
		onClosed()
	}
}
