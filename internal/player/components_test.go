package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5.9, "0:05"},
		{59, "0:59"},
		{60, "1:00"},
		{100, "1:40"},
		{3725, "62:05"},
		{-3, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.in))
		})
	}
}

func TestScrubRects(t *testing.T) {
	s := NewScrub(ScrubCallbacks{})
	s.Init(110, 10)

	got := s.SetBufferedRanges([]models.BufferedRange{
		{Start: 20, End: 30},
		{Start: 0, End: 10},
		{Start: 5, End: 12},
		{Start: -5, End: 0},
	}, 100)
	want := []RangeRect{{LeftPct: 0, WidthPct: 12}, {LeftPct: 20, WidthPct: 10}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("rects mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, s.SetBufferedRanges([]models.BufferedRange{{Start: 0, End: 1}}, math.NaN()))
	assert.Nil(t, s.Rects())
}

func TestScrubRectsTouchingRanges(t *testing.T) {
	s := NewScrub(ScrubCallbacks{})
	s.Init(110, 10)

	got := s.SetBufferedRanges([]models.BufferedRange{
		{Start: 0, End: 10},
		{Start: 10, End: 20},
		{Start: 20, End: 25},
	}, 100)
	want := []RangeRect{
		{LeftPct: 0, WidthPct: 10},
		{LeftPct: 10, WidthPct: 10},
		{LeftPct: 20, WidthPct: 5},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("rects mismatch (-want +got):\n%s", diff)
	}
}

func TestScrubPosition(t *testing.T) {
	s := NewScrub(ScrubCallbacks{})
	s.Init(110, 10)
	assert.Equal(t, 100.0, s.PixelsPerUnit())

	s.SetPosition(25, 50)
	assert.Equal(t, 50.0, s.HandleX())
	assert.Equal(t, 0.5, s.Fraction())

	s.SetPosition(10, math.NaN())
	assert.Equal(t, 50.0, s.HandleX(), "unknown duration keeps the handle")

	s.SetPosition(80, 50)
	assert.Equal(t, 100.0, s.HandleX(), "clamped to the travel")

	s.Init(60, 10)
	assert.Equal(t, 50.0, s.HandleX(), "remeasure keeps the fraction")
}

func TestScrubDrag(t *testing.T) {
	var (
		started  float64
		moved    []float64
		ended    float64
		resumed  bool
		endCalls int
	)
	s := NewScrub(ScrubCallbacks{
		Start: func(f float64) bool { started = f; return false },
		Move:  func(f float64) { moved = append(moved, f) },
		End:   func(f float64, resume bool) { ended, resumed = f, resume; endCalls++ },
	})
	s.Init(110, 10)

	s.PointerMove(40)
	assert.Empty(t, moved, "moves outside a drag are ignored")

	s.PointerDown(30)
	assert.True(t, s.Dragging())
	assert.Equal(t, 0.3, started)

	s.SetPosition(90, 100)
	assert.Equal(t, 30.0, s.HandleX(), "position updates ignored while dragging")

	s.PointerMove(-20)
	s.PointerMove(60)
	assert.Equal(t, []float64{0, 0.6}, moved)

	s.PointerUp()
	assert.False(t, s.Dragging())
	assert.Equal(t, 0.6, ended)
	assert.True(t, resumed)

	s.PointerUp()
	assert.Equal(t, 1, endCalls)

	s.PointerDown(10)
	s.Cancel()
	assert.False(t, s.Dragging())
	assert.Equal(t, 1, endCalls, "cancel does not seek")
}

func TestVisibility(t *testing.T) {
	clock := &fakeClock{}
	v := NewVisibility(0, false, clock.AfterFunc)
	assert.Equal(t, DefaultInactivityTimeout, v.Timeout())
	assert.True(t, v.Shown())

	v.Activity()
	clock.Advance(DefaultInactivityTimeout - time.Millisecond)
	assert.True(t, v.Shown())
	v.Activity()
	clock.Advance(DefaultInactivityTimeout - time.Millisecond)
	assert.True(t, v.Shown(), "activity restarts the timer")
	clock.Advance(time.Millisecond)
	assert.False(t, v.Shown())

	v.Activity()
	v.Stop()
	clock.Advance(time.Hour)
	assert.True(t, v.Shown())
}

func TestVisibilityTimeoutBounds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{time.Second, DefaultInactivityTimeout},
		{MinInactivityTimeout, MinInactivityTimeout},
		{7 * time.Second, 7 * time.Second},
		{time.Minute, DefaultInactivityTimeout},
	}
	for _, tt := range tests {
		v := NewVisibility(tt.in, false, (&fakeClock{}).AfterFunc)
		assert.Equal(t, tt.want, v.Timeout(), "timeout %s", tt.in)
	}
}

func TestVisibilityLeave(t *testing.T) {
	clock := &fakeClock{}
	touch := NewVisibility(0, true, clock.AfterFunc)
	touch.Leave()
	assert.True(t, touch.Shown())

	v := NewVisibility(0, false, clock.AfterFunc)
	v.SetDragging(true)
	v.Leave()
	assert.True(t, v.Shown())
	v.SetDragging(false)
	v.Leave()
	assert.False(t, v.Shown())
}

func TestWithSeek(t *testing.T) {
	tests := []struct {
		in   string
		at   float64
		want string
	}{
		{"http://h/t/clip", 30, "http://h/t/clip?seek=30"},
		{"http://h/t/clip?fmt=mp4", 12.5, "http://h/t/clip?fmt=mp4&seek=12.5"},
		{"http://h/t/clip?seek=4", 8, "http://h/t/clip?seek=8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withSeek(tt.in, tt.at))
	}
}

func TestSourceSwitcher(t *testing.T) {
	el := newFakeElement()
	sw := NewSourceSwitcher(alternateDesc(), el)
	require.True(t, sw.Available())

	require.True(t, sw.Toggle(42))
	assert.Equal(t, SourceAlternate, sw.Active())
	assert.Equal(t, 42.0, sw.Offset())
	assert.True(t, sw.Pending())
	assert.False(t, sw.Toggle(50), "pending switch blocks another")

	sw.Loaded()
	assert.False(t, sw.Pending())

	assert.False(t, sw.SeekAlternate(10, true))
	assert.True(t, sw.SeekAlternate(10, false))
	assert.Equal(t, 10.0, sw.Offset())

	require.True(t, sw.Toggle(15))
	assert.Equal(t, SourceOrigin, sw.Active())
	at, ok := sw.RestorePosition()
	assert.True(t, ok)
	assert.Equal(t, 15.0, at)
	sw.Loaded()
	assert.Equal(t, []float64{15}, el.seeks)
	assert.False(t, sw.SeekAlternate(10, false))
}

func TestSourceSwitcherFailure(t *testing.T) {
	el := newFakeElement()
	sw := NewSourceSwitcher(alternateDesc(), el)

	assert.False(t, sw.Failed(), "error with nothing pending is fatal")

	require.True(t, sw.Toggle(20))
	assert.True(t, sw.Failed())
	assert.Equal(t, SourceOrigin, sw.Active())
	assert.Equal(t, "http://media.test/clip.webm", el.Src())
	assert.False(t, sw.Failed(), "a failed revert is fatal")
}

func TestSourceSwitcherUnavailable(t *testing.T) {
	tests := map[string]models.MediaDescriptor{
		"no alternate": progressiveDesc(),
		"adaptive":     adaptiveDesc(),
		"same encoding": func() models.MediaDescriptor {
			d := alternateDesc()
			d.AlternateEncoding = "VP8"
			return d
		}(),
	}
	for name, desc := range tests {
		t.Run(name, func(t *testing.T) {
			sw := NewSourceSwitcher(desc, newFakeElement())
			assert.False(t, sw.Available())
			assert.False(t, sw.Toggle(1))
		})
	}
}

func TestTrackCoordinatorSingleTrack(t *testing.T) {
	el := newFakeElement()
	el.tracks[models.KindVideo] = []*models.Track{{ID: "v1"}}
	el.tracks[models.KindAudio] = []*models.Track{{ID: "a1"}}
	tc := NewTrackCoordinator(el)
	tc.Refresh()

	assert.False(t, tc.Selectable())
	assert.Nil(t, tc.Surface())
	assert.NoError(t, tc.Select(models.KindAudio, "a1"))
}

func TestTrackCoordinatorUnknownTrack(t *testing.T) {
	el := newFakeElement()
	el.tracks[models.KindAudio] = []*models.Track{{ID: "a1"}, {ID: "a2"}}
	el.current[models.KindAudio] = "a1"
	tc := NewTrackCoordinator(el)
	tc.Refresh()

	err := tc.Select(models.KindAudio, "nope")
	assert.ErrorIs(t, err, ErrMedia)
	assert.ErrorIs(t, err, media.ErrUnknownTrack)
	assert.Empty(t, el.seeks)
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := error(newError(KindTransport, "probe", cause))

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrMedia)
	assert.Equal(t, "probe: transport: boom", err.Error())

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindTransport, perr.Kind)
	assert.Equal(t, "race-discard", KindRaceDiscard.String())
	assert.Equal(t, "select track: unsupported", newError(KindUnsupported, "select track", nil).Error())
}

func TestViewerOpenClosesPrevious(t *testing.T) {
	page := newFakePage()
	original := page.State()
	var elements []*fakeElement
	closed := 0

	v := NewViewer(func(models.MediaDescriptor) media.Element {
		el := newFakeElement()
		elements = append(elements, el)
		return el
	}, Options{
		Page:     page,
		Clock:    &fakeClock{},
		Logger:   zerolog.Nop(),
		OnClosed: func() { closed++ },
	})
	assert.Nil(t, v.Current())

	first, err := v.Open(context.Background(), progressiveDesc())
	require.NoError(t, err)
	second, err := v.Open(context.Background(), alternateDesc())
	require.NoError(t, err)

	assert.Equal(t, StateClosed, first.State())
	assert.True(t, elements[0].unloaded)
	assert.Equal(t, 1, closed)
	assert.Same(t, second, v.Current())
	assert.Equal(t, OverflowHidden, page.State().Overflow)
	assert.Equal(t, 3, page.listenerCount())

	v.Close()
	assert.Equal(t, original, page.State())
	assert.Equal(t, 2, closed)
	assert.Nil(t, v.Current())
	assert.Zero(t, page.listenerCount())
}

func TestViewerCurrentAfterEscape(t *testing.T) {
	page := newFakePage()
	v := NewViewer(func(models.MediaDescriptor) media.Element { return newFakeElement() }, Options{
		Page:   page,
		Clock:  &fakeClock{},
		Logger: zerolog.Nop(),
	})
	_, err := v.Open(context.Background(), progressiveDesc())
	require.NoError(t, err)

	page.fire(Input{Kind: InputKeyUp, Key: "Escape"})
	assert.Nil(t, v.Current())
	assert.Equal(t, "auto", page.State().Overflow)
}
