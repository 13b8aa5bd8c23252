package media

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mohaanymo/rainbow/internal/capability"
	"github.com/mohaanymo/rainbow/internal/models"
)

// recorder collects events from an element.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(el Element) *recorder {
	r := &recorder{}
	el.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) has(t EventType) bool {
	for _, got := range r.types() {
		if got == t {
			return true
		}
	}
	return false
}

func (r *recorder) first(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == t {
			return ev, true
		}
	}
	return Event{}, false
}

func waitFor(t *testing.T, r *recorder, typ EventType) {
	t.Helper()
	require.Eventually(t, func() bool { return r.has(typ) }, 5*time.Second, 5*time.Millisecond, "waiting for %s", typ)
}

func TestEmitterOrderAndAsyncDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newEmitter()
	var mu sync.Mutex
	var got []EventType
	delivered := make(chan struct{}, 3)
	e.subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
		delivered <- struct{}{}
	})

	e.emit(Event{Type: EventLoadedMetadata})
	e.emit(Event{Type: EventProgress})
	e.emit(Event{Type: EventCanPlayThrough})
	for i := 0; i < 3; i++ {
		<-delivered
	}
	mu.Lock()
	assert.Equal(t, []EventType{EventLoadedMetadata, EventProgress, EventCanPlayThrough}, got)
	mu.Unlock()

	e.close()
	e.emit(Event{Type: EventError}) // dropped after close
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := newEmitter()
	defer e.close()

	calls := make(chan EventType, 4)
	cancel := e.subscribe(func(ev Event) { calls <- ev.Type })
	e.emit(Event{Type: EventProgress})
	assert.Equal(t, EventProgress, <-calls)

	cancel()
	e.emit(Event{Type: EventEnded})
	select {
	case ev := <-calls:
		t.Fatalf("unexpected delivery after cancel: %s", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayheadAdvancesAndClamps(t *testing.T) {
	now := time.Unix(0, 0)
	p := newPlayhead(nil)
	p.now = func() time.Time { return now }

	assert.True(t, p.paused())
	p.seek(2)
	assert.Equal(t, 2.0, p.position())

	p.play()
	now = now.Add(1500 * time.Millisecond)
	assert.InDelta(t, 3.5, p.position(), 1e-9)

	p.pause()
	now = now.Add(time.Hour)
	assert.InDelta(t, 3.5, p.position(), 1e-9)

	p.setDuration(3)
	assert.Equal(t, 3.0, p.position(), "clamped to duration")

	p.seek(-4)
	assert.Equal(t, 0.0, p.position())
	p.seek(10)
	assert.Equal(t, 3.0, p.position())
	p.stop()
}

func TestPlayheadEndsAndLoops(t *testing.T) {
	ended := make(chan struct{}, 1)
	p := newPlayhead(func() { ended <- struct{}{} })
	p.setDuration(0.05)
	p.play()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("ended not reported")
	}
	assert.True(t, p.paused())
	assert.Equal(t, 0.05, p.position())

	p.setLoop(true)
	p.play() // restarts from zero at the end
	time.Sleep(120 * time.Millisecond)
	assert.False(t, p.paused(), "looping playhead keeps playing")
	select {
	case <-ended:
		t.Fatal("looping playhead must not end")
	default:
	}
	p.stop()
}

func TestProgressiveDurationHeader(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	body := bytes.Repeat([]byte{0xAB}, 3<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Duration", "42.5")
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	el := NewProgressive(Options{Client: srv.Client(), Logger: zerolog.Nop()})
	rec := record(el)
	el.Load(srv.URL + "/clip.webm")

	waitFor(t, rec, EventCanPlayThrough)
	assert.Equal(t, 42.5, el.Duration())
	assert.Equal(t, srv.URL+"/clip.webm", el.Src())

	require.Eventually(t, func() bool {
		b := el.Buffered()
		return len(b) == 1 && b[0].End == 42.5
	}, 5*time.Second, 5*time.Millisecond)

	types := rec.types()
	assert.Equal(t, EventLoadedMetadata, types[0], "metadata precedes everything else")
	assert.True(t, rec.has(EventProgress))

	el.Unload()
	srv.CloseClientConnections()
}

func TestProgressiveMovieHeader(t *testing.T) {
	seg := mp4.CreateEmptyInit()
	seg.Moov.Mvhd.Timescale = 90000
	seg.Moov.Mvhd.Duration = 90000 * 8
	var buf bytes.Buffer
	require.NoError(t, seg.Encode(&buf))
	buf.Write(make([]byte, 4096))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	el := NewProgressive(Options{Client: srv.Client(), Logger: zerolog.Nop()})
	defer el.Unload()
	rec := record(el)
	el.Load(srv.URL + "/movie.mp4")

	waitFor(t, rec, EventCanPlayThrough)
	assert.InDelta(t, 8.0, el.Duration(), 1e-9)
}

func TestProgressiveUnknownDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	el := NewProgressive(Options{Client: srv.Client(), Logger: zerolog.Nop()})
	defer el.Unload()
	rec := record(el)
	el.Load(srv.URL + "/stream")

	waitFor(t, rec, EventLoadedMetadata)
	assert.True(t, math.IsNaN(el.Duration()))
	assert.Empty(t, el.Buffered())
}

func TestProgressiveHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	el := NewProgressive(Options{Client: srv.Client(), Logger: zerolog.Nop()})
	defer el.Unload()
	rec := record(el)
	el.Load(srv.URL + "/missing.mp4")

	waitFor(t, rec, EventError)
	ev, _ := rec.first(EventError)
	assert.ErrorContains(t, ev.Err, "HTTP 404")
	assert.Equal(t, srv.URL+"/missing.mp4", ev.Src)
}

func TestProgressiveUnloadIsFinal(t *testing.T) {
	el := NewProgressive(Options{Logger: zerolog.Nop()})
	el.Unload()
	el.Unload()
	el.Load("http://127.0.0.1:1/never")
	assert.Equal(t, "", el.Src())
}

const testMPD = `<?xml version="1.0"?>
<MPD mediaPresentationDuration="PT8S">
  <Period>
    <AdaptationSet id="video" mimeType="video/mp4">
      <SegmentTemplate media="$RepresentationID$/$Number$.m4s" timescale="1" duration="2" startNumber="1"/>
      <Representation id="av1" codecs="av01.0.08M.08" bandwidth="9000000" width="3840" height="2160" frameRate="60"/>
      <Representation id="avc" codecs="avc1.64001f" bandwidth="1000000" width="1280" height="720" frameRate="30"/>
    </AdaptationSet>
    <AdaptationSet id="en" mimeType="audio/mp4" lang="en" codecs="mp4a.40.2">
      <SegmentTemplate media="$RepresentationID$/$Number$.m4s" timescale="1" duration="2" startNumber="1"/>
      <Representation id="aud-en" bandwidth="128000"/>
    </AdaptationSet>
    <AdaptationSet id="de" mimeType="audio/mp4" lang="de" codecs="mp4a.40.2">
      <SegmentTemplate media="$RepresentationID$/$Number$.m4s" timescale="1" duration="2" startNumber="1"/>
      <Representation id="aud-de" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`

type mpdServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newMPDServer(t *testing.T) *mpdServer {
	s := &mpdServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		if r.URL.Path == "/show/manifest.mpd" {
			_, _ = w.Write([]byte(testMPD))
			return
		}
		_, _ = w.Write([]byte("segment"))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *mpdServer) hitsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.hits {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}
	return n
}

func TestAdaptiveSelectsAndBuffers(t *testing.T) {
	srv := newMPDServer(t)

	el := NewAdaptive(Options{Client: srv.Client(), Logger: zerolog.Nop(), Workers: 2}, nil)
	defer el.Unload()
	el.SetRepresentationFilter(capability.Filter(capability.TierBasic))
	rec := record(el)
	el.Load(srv.URL + "/show/manifest.mpd")

	waitFor(t, rec, EventTracksLoaded)
	assert.Equal(t, 8.0, el.Duration())
	assert.Len(t, el.TracksFor(models.KindAudio), 2)
	assert.Equal(t, "en", el.CurrentTrackFor(models.KindAudio).ID)

	waitFor(t, rec, EventCanPlayThrough)
	require.Eventually(t, func() bool {
		b := el.Buffered()
		return len(b) == 1 && b[0] == models.BufferedRange{Start: 0, End: 8}
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 4, srv.hitsWithPrefix("/show/avc/"), "tier 3 plays the avc representation")
	assert.Zero(t, srv.hitsWithPrefix("/show/av1/"))
}

func TestAdaptiveBestTierPicksHighestBandwidth(t *testing.T) {
	srv := newMPDServer(t)

	el := NewAdaptive(Options{Client: srv.Client(), Logger: zerolog.Nop()}, nil)
	defer el.Unload()
	el.SetRepresentationFilter(capability.Filter(capability.TierBest))
	rec := record(el)
	el.Load(srv.URL + "/show/manifest.mpd")

	waitFor(t, rec, EventCanPlayThrough)
	require.Eventually(t, func() bool { return srv.hitsWithPrefix("/show/av1/") == 4 }, 5*time.Second, 5*time.Millisecond)
}

func TestAdaptiveSetCurrentTrack(t *testing.T) {
	srv := newMPDServer(t)

	el := NewAdaptive(Options{Client: srv.Client(), Logger: zerolog.Nop()}, nil)
	defer el.Unload()
	assert.ErrorIs(t, el.SetCurrentTrack(models.KindAudio, "de"), ErrNoSource)

	rec := record(el)
	el.Load(srv.URL + "/show/manifest.mpd")
	waitFor(t, rec, EventTracksLoaded)

	require.NoError(t, el.SetCurrentTrack(models.KindAudio, "de"))
	assert.Equal(t, "de", el.CurrentTrackFor(models.KindAudio).ID)
	require.Eventually(t, func() bool { return srv.hitsWithPrefix("/show/aud-de/") > 0 }, 5*time.Second, 5*time.Millisecond)

	err := el.SetCurrentTrack(models.KindAudio, "fr")
	assert.ErrorIs(t, err, ErrUnknownTrack)
	assert.Equal(t, "de", el.CurrentTrackFor(models.KindAudio).ID, "failed switch keeps the current track")
}

func TestAdaptiveNothingPlayable(t *testing.T) {
	srv := newMPDServer(t)

	el := NewAdaptive(Options{Client: srv.Client(), Logger: zerolog.Nop()}, nil)
	defer el.Unload()
	el.SetRepresentationFilter(func(models.Representation) bool { return false })
	rec := record(el)
	el.Load(srv.URL + "/show/manifest.mpd")

	waitFor(t, rec, EventError)
	ev, _ := rec.first(EventError)
	assert.ErrorIs(t, ev.Err, ErrNoPlayableRepresentation)
	assert.False(t, rec.has(EventLoadedMetadata))
}

func TestAdaptiveManifestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	el := NewAdaptive(Options{Client: srv.Client(), Logger: zerolog.Nop()}, nil)
	defer el.Unload()
	rec := record(el)
	el.Load(srv.URL + "/gone.mpd")

	waitFor(t, rec, EventError)
}

func TestIntersectRanges(t *testing.T) {
	x := []models.BufferedRange{{Start: 0, End: 4}, {Start: 6, End: 10}}
	y := []models.BufferedRange{{Start: 2, End: 8}}
	assert.Equal(t, []models.BufferedRange{{Start: 2, End: 4}, {Start: 6, End: 8}}, intersectRanges(x, y))
	assert.Empty(t, intersectRanges(x, nil))
}
