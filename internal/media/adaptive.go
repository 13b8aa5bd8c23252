package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/samber/lo"

	"github.com/mohaanymo/rainbow/internal/capability"
	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/parser"
	"github.com/mohaanymo/rainbow/internal/probe"
)

// playThroughSeconds of contiguous buffer ahead of the playhead make an
// adaptive element report canplaythrough.
const playThroughSeconds = 10

// prefetchedKinds are the track kinds whose segments are fetched.
var prefetchedKinds = []models.TrackKind{models.KindVideo, models.KindAudio}

// Adaptive plays a DASH or HLS manifest. For each prefetched kind one
// track is current and one representation of it is selected: the
// highest-bandwidth one the representation filter accepts.
type Adaptive struct {
	opts     Options
	registry *parser.Registry
	events   *emitter
	head     *playhead
	fetch    *prefetcher

	mu          sync.Mutex
	src         string
	loadGen     int
	loadCtx     context.Context
	loadCancel  context.CancelFunc
	fetchCancel context.CancelFunc
	unloaded    bool
	muted       bool

	manifest    *models.Manifest
	filter      func(models.Representation) bool
	current     map[models.TrackKind]*models.Track
	selected    map[models.TrackKind]*models.Representation
	ranges      map[models.TrackKind][]models.BufferedRange
	canPlaySent bool
}

// NewAdaptive creates an idle adaptive element. A nil registry gets one
// built on the options' client.
func NewAdaptive(opts Options, registry *parser.Registry) *Adaptive {
	if registry == nil {
		registry = parser.NewRegistry(opts.client(), nil)
	}
	a := &Adaptive{
		opts:     opts,
		registry: registry,
		events:   newEmitter(),
		fetch:    newPrefetcher(opts.Workers, opts.client(), opts.Logger),
	}
	a.fetch.keepData = func(t *segmentTask) bool { return t.Segment.Index < 0 }
	a.head = newPlayhead(func() { a.events.emit(Event{Type: EventEnded, Src: a.Src()}) })
	a.resetLocked()
	return a
}

func (a *Adaptive) resetLocked() {
	a.manifest = nil
	a.current = make(map[models.TrackKind]*models.Track)
	a.selected = make(map[models.TrackKind]*models.Representation)
	a.ranges = make(map[models.TrackKind][]models.BufferedRange)
	a.canPlaySent = false
}

// Load implements Element.
func (a *Adaptive) Load(src string) {
	a.mu.Lock()
	if a.unloaded {
		a.mu.Unlock()
		return
	}
	a.cancelLocked()
	a.loadCtx, a.loadCancel = context.WithCancel(context.Background())
	a.src = src
	a.loadGen++
	gen := a.loadGen
	ctx := a.loadCtx
	a.resetLocked()
	a.head.reset()
	a.mu.Unlock()

	go a.load(ctx, gen, src)
}

func (a *Adaptive) cancelLocked() {
	if a.fetchCancel != nil {
		a.fetchCancel()
		a.fetchCancel = nil
	}
	if a.loadCancel != nil {
		a.loadCancel()
		a.loadCancel = nil
	}
}

func (a *Adaptive) load(ctx context.Context, gen int, src string) {
	m, err := a.registry.Parse(ctx, src)
	if err != nil {
		a.fail(gen, src, fmt.Errorf("load manifest: %w", err))
		return
	}

	a.mu.Lock()
	if gen != a.loadGen || a.unloaded {
		a.mu.Unlock()
		return
	}
	a.manifest = m
	for _, kind := range prefetchedKinds {
		if tracks := m.TracksFor(kind); len(tracks) > 0 {
			a.current[kind] = tracks[0]
			a.selected[kind] = capability.Select(tracks[0].Representations, a.filter)
		}
	}
	if len(m.TracksFor(models.KindVideo)) > 0 && a.selected[models.KindVideo] == nil {
		a.mu.Unlock()
		a.fail(gen, src, fmt.Errorf("select video: %w", ErrNoPlayableRepresentation))
		return
	}

	duration := m.Duration.Seconds()
	if duration <= 0 {
		duration = math.NaN()
	}
	a.head.setDuration(duration)
	a.logSelectionLocked()
	a.events.emit(Event{Type: EventLoadedMetadata, Src: src})
	a.events.emit(Event{Type: EventTracksLoaded, Src: src})
	a.startPrefetchLocked(0)
	a.mu.Unlock()
}

func (a *Adaptive) logSelectionLocked() {
	for kind, rep := range a.selected {
		if rep == nil {
			continue
		}
		a.opts.Logger.Debug().
			Str("kind", kind.String()).
			Str("track", a.current[kind].ID).
			Str("representation", rep.ID).
			Str("codec", rep.Codec).
			Str("resolution", rep.Resolution.String()).
			Int64("bandwidth", rep.Bandwidth).
			Msg("representation selected")
	}
}

// startPrefetchLocked restarts segment fetching from position at.
func (a *Adaptive) startPrefetchLocked(at float64) {
	if a.fetchCancel != nil {
		a.fetchCancel()
	}
	if a.loadCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(a.loadCtx)
	a.fetchCancel = cancel

	var tasks []*segmentTask
	for _, kind := range prefetchedKinds {
		rep := a.selected[kind]
		if rep == nil {
			continue
		}
		if rep.InitSegment != nil {
			tasks = append(tasks, &segmentTask{Segment: rep.InitSegment, Rep: rep, Kind: kind})
		}
		for _, seg := range rep.Segments {
			end := (seg.Start + seg.Duration).Seconds()
			if end <= at || a.coveredLocked(kind, seg) {
				continue
			}
			tasks = append(tasks, &segmentTask{Segment: seg, Rep: rep, Kind: kind})
		}
	}
	if len(tasks) == 0 {
		return
	}

	gen := a.loadGen
	src := a.src
	go a.fetch.Run(ctx, tasks, func(res segmentResult) { a.segmentDone(ctx, gen, src, res) })
}

func (a *Adaptive) coveredLocked(kind models.TrackKind, seg *models.Segment) bool {
	start, end := seg.Start.Seconds(), (seg.Start + seg.Duration).Seconds()
	for _, r := range a.ranges[kind] {
		if r.Start <= start && end <= r.End {
			return true
		}
	}
	return false
}

func (a *Adaptive) segmentDone(ctx context.Context, gen int, src string, res segmentResult) {
	if res.Err != nil {
		if ctx.Err() != nil || errors.Is(res.Err, context.Canceled) {
			return
		}
		a.fail(gen, src, res.Err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.loadGen || a.unloaded || ctx.Err() != nil {
		return
	}
	task := res.Task
	if a.selected[task.Kind] != task.Rep {
		return
	}

	if task.Segment.Index < 0 {
		if codecs, err := probe.InitCodecs(res.Data); err == nil {
			a.opts.Logger.Debug().Str("representation", task.Rep.ID).Strs("codecs", codecs).Msg("init segment parsed")
		} else {
			a.opts.Logger.Debug().Err(err).Str("representation", task.Rep.ID).Msg("init segment unreadable")
		}
		return
	}

	seg := task.Segment
	a.ranges[task.Kind] = models.CoalesceRanges(append(a.ranges[task.Kind], models.BufferedRange{
		Start: seg.Start.Seconds(),
		End:   (seg.Start + seg.Duration).Seconds(),
	}))
	a.events.emit(Event{Type: EventProgress, Src: src})

	if !a.canPlaySent && a.canPlayThroughLocked() {
		a.canPlaySent = true
		a.events.emit(Event{Type: EventCanPlayThrough, Src: src})
	}
}

func (a *Adaptive) canPlayThroughLocked() bool {
	pos := a.head.position()
	d := a.head.durationValue()
	need := float64(playThroughSeconds)
	if known(d) {
		need = math.Min(need, d-pos)
	}
	for _, r := range a.bufferedLocked() {
		if r.Start <= pos && pos <= r.End && r.End-pos >= need-1e-9 {
			return true
		}
	}
	return false
}

// bufferedLocked intersects the buffered ranges of every selected kind:
// a span is playable only once all of them have it.
func (a *Adaptive) bufferedLocked() []models.BufferedRange {
	var out []models.BufferedRange
	first := true
	for _, kind := range prefetchedKinds {
		if a.selected[kind] == nil {
			continue
		}
		if first {
			out = a.ranges[kind]
			first = false
			continue
		}
		out = intersectRanges(out, a.ranges[kind])
	}
	return append([]models.BufferedRange(nil), out...)
}

func intersectRanges(x, y []models.BufferedRange) []models.BufferedRange {
	var out []models.BufferedRange
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		start := math.Max(x[i].Start, y[j].Start)
		end := math.Min(x[i].End, y[j].End)
		if end > start {
			out = append(out, models.BufferedRange{Start: start, End: end})
		}
		if x[i].End < y[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}

func (a *Adaptive) fail(gen int, src string, err error) {
	a.mu.Lock()
	stale := gen != a.loadGen || a.unloaded
	a.mu.Unlock()
	if stale {
		return
	}
	a.opts.Logger.Warn().Err(err).Str("src", src).Msg("adaptive load failed")
	a.events.emit(Event{Type: EventError, Src: src, Err: err})
}

// Src implements Element.
func (a *Adaptive) Src() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.src
}

// Play implements Element.
func (a *Adaptive) Play() { a.head.play() }

// Pause implements Element.
func (a *Adaptive) Pause() { a.head.pause() }

// Paused implements Element.
func (a *Adaptive) Paused() bool { return a.head.paused() }

// CurrentTime implements Element.
func (a *Adaptive) CurrentTime() float64 { return a.head.position() }

// Seek implements Element. Seeking outside the buffer refetches from the
// new position.
func (a *Adaptive) Seek(t float64) {
	a.head.seek(t)
	pos := a.head.position()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manifest == nil || a.unloaded {
		return
	}
	for _, r := range a.bufferedLocked() {
		if r.Start <= pos && pos < r.End {
			return
		}
	}
	a.startPrefetchLocked(pos)
}

// Duration implements Element.
func (a *Adaptive) Duration() float64 { return a.head.durationValue() }

// Buffered implements Element.
func (a *Adaptive) Buffered() []models.BufferedRange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferedLocked()
}

// SetMuted implements Element.
func (a *Adaptive) SetMuted(muted bool) {
	a.mu.Lock()
	a.muted = muted
	a.mu.Unlock()
}

// SetLoop implements Element.
func (a *Adaptive) SetLoop(loop bool) { a.head.setLoop(loop) }

// Subscribe implements Element.
func (a *Adaptive) Subscribe(fn func(Event)) func() { return a.events.subscribe(fn) }

// TracksFor implements AdaptiveElement.
func (a *Adaptive) TracksFor(kind models.TrackKind) []*models.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manifest == nil {
		return nil
	}
	return a.manifest.TracksFor(kind)
}

// CurrentTrackFor implements AdaptiveElement.
func (a *Adaptive) CurrentTrackFor(kind models.TrackKind) *models.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current[kind]
}

// SetCurrentTrack implements AdaptiveElement. On error the current track
// is left unchanged.
func (a *Adaptive) SetCurrentTrack(kind models.TrackKind, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unloaded {
		return ErrUnloaded
	}
	if a.manifest == nil {
		return ErrNoSource
	}

	track, ok := lo.Find(a.manifest.TracksFor(kind), func(t *models.Track) bool { return t.ID == id })
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownTrack, kind, id)
	}
	rep := capability.Select(track.Representations, a.filter)
	if rep == nil {
		return fmt.Errorf("track %q: %w", id, ErrNoPlayableRepresentation)
	}
	if a.current[kind] == track {
		return nil
	}

	a.current[kind] = track
	a.selected[kind] = rep
	a.ranges[kind] = nil
	a.logSelectionLocked()
	a.startPrefetchLocked(a.head.position())
	return nil
}

// SetRepresentationFilter implements AdaptiveElement.
func (a *Adaptive) SetRepresentationFilter(accept func(models.Representation) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = accept
	if a.manifest == nil {
		return
	}

	changed := false
	for kind, track := range a.current {
		rep := capability.Select(track.Representations, accept)
		if rep != nil && rep != a.selected[kind] {
			a.selected[kind] = rep
			a.ranges[kind] = nil
			changed = true
		}
	}
	if changed {
		a.logSelectionLocked()
		a.startPrefetchLocked(a.head.position())
	}
}

// Unload implements Element.
func (a *Adaptive) Unload() {
	a.mu.Lock()
	if a.unloaded {
		a.mu.Unlock()
		return
	}
	a.unloaded = true
	a.loadGen++
	a.cancelLocked()
	a.mu.Unlock()

	a.head.stop()
	a.events.close()
}
