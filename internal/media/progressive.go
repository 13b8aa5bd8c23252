package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/probe"
)

const (
	// progressStep is how many downloaded bytes trigger a progress event.
	progressStep = 256 << 10
	// playThroughBytes must be buffered before canplaythrough fires.
	playThroughBytes = 1 << 20
)

// Options configures the elements.
type Options struct {
	Client *http.Client
	Logger zerolog.Logger
	// Workers bounds concurrent segment fetches of adaptive elements.
	Workers int
}

func (o Options) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}

// Progressive plays a single-file source streamed over HTTP. Duration
// comes from the X-Content-Duration header or an early moov box; the
// buffered range grows with the downloaded byte fraction.
type Progressive struct {
	opts   Options
	events *emitter
	head   *playhead

	mu       sync.Mutex
	src      string
	cancel   context.CancelFunc
	loadGen  int
	total    int64
	unloaded bool

	loaded int64
	muted  bool

	metaSent        bool
	playThroughSent bool
}

// NewProgressive creates an idle progressive element.
func NewProgressive(opts Options) *Progressive {
	p := &Progressive{opts: opts, events: newEmitter()}
	p.head = newPlayhead(func() { p.emit(EventEnded, nil) })
	return p
}

// Load implements Element.
func (p *Progressive) Load(src string) {
	p.mu.Lock()
	if p.unloaded {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.src = src
	p.total = 0
	p.metaSent = false
	p.playThroughSent = false
	p.loaded = 0
	p.loadGen++
	gen := p.loadGen
	p.head.reset()
	p.mu.Unlock()

	go p.stream(ctx, gen, src)
}

func (p *Progressive) stream(ctx context.Context, gen int, src string) {
	log := p.opts.Logger.With().Str("src", src).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		p.fail(gen, src, fmt.Errorf("build request: %w", err))
		return
	}
	resp, err := p.opts.client().Do(req)
	if err != nil {
		p.fail(gen, src, fmt.Errorf("fetch source: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		p.fail(gen, src, fmt.Errorf("fetch source: HTTP %d", resp.StatusCode))
		return
	}

	p.mu.Lock()
	if gen != p.loadGen {
		p.mu.Unlock()
		return
	}
	p.total = resp.ContentLength
	p.mu.Unlock()

	body := &countingReader{r: resp.Body, onRead: func(n int64) { p.progress(gen, src, n) }}

	duration := math.NaN()
	if h := resp.Header.Get("X-Content-Duration"); h != "" {
		if d, err := strconv.ParseFloat(h, 64); err == nil && known(d) {
			duration = d
		}
	}
	if !known(duration) {
		info, err := probe.ReadMovieHeader(body)
		switch {
		case err == nil && known(info.Duration):
			duration = info.Duration
			log.Debug().Strs("codecs", info.Codecs).Float64("duration", duration).Msg("read movie header")
		case err != nil && !errors.Is(err, probe.ErrNoMoov):
			log.Debug().Err(err).Msg("movie header unreadable")
		}
	}

	p.mu.Lock()
	if gen != p.loadGen || p.unloaded {
		p.mu.Unlock()
		return
	}
	p.head.setDuration(duration)
	p.metaSent = true
	p.events.emit(Event{Type: EventLoadedMetadata, Src: src})
	p.mu.Unlock()
	p.maybePlayThrough(gen, src, false)

	if _, err := io.Copy(io.Discard, body); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.fail(gen, src, fmt.Errorf("read source: %w", err))
		return
	}
	p.progress(gen, src, 0)
	log.Debug().Msg("source fully buffered")
}

// progress accounts n more bytes and emits progress events as thresholds
// are crossed. n == 0 marks the end of the stream.
func (p *Progressive) progress(gen int, src string, n int64) {
	p.mu.Lock()
	if gen != p.loadGen || p.unloaded {
		p.mu.Unlock()
		return
	}
	before := p.loaded
	p.loaded += n
	after := p.loaded
	p.mu.Unlock()

	if n == 0 || after/progressStep != before/progressStep {
		p.events.emit(Event{Type: EventProgress, Src: src})
	}
	p.maybePlayThrough(gen, src, n == 0)
}

// maybePlayThrough emits canplaythrough once per load, after metadata and
// once enough bytes are buffered (or the stream is complete).
func (p *Progressive) maybePlayThrough(gen int, src string, complete bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.loadGen || !p.metaSent || p.playThroughSent {
		return
	}
	threshold := int64(playThroughBytes)
	if p.total > 0 && p.total < threshold {
		threshold = p.total
	}
	if !complete && p.loaded < threshold {
		return
	}
	p.playThroughSent = true
	p.events.emit(Event{Type: EventCanPlayThrough, Src: src})
}

func (p *Progressive) current(gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.loadGen && !p.unloaded
}

func (p *Progressive) fail(gen int, src string, err error) {
	if !p.current(gen) {
		return
	}
	p.opts.Logger.Warn().Err(err).Str("src", src).Msg("progressive load failed")
	p.events.emit(Event{Type: EventError, Src: src, Err: err})
}

func (p *Progressive) emit(t EventType, err error) {
	p.events.emit(Event{Type: t, Src: p.Src(), Err: err})
}

// Src implements Element.
func (p *Progressive) Src() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Play implements Element.
func (p *Progressive) Play() { p.head.play() }

// Pause implements Element.
func (p *Progressive) Pause() { p.head.pause() }

// Paused implements Element.
func (p *Progressive) Paused() bool { return p.head.paused() }

// CurrentTime implements Element.
func (p *Progressive) CurrentTime() float64 { return p.head.position() }

// Seek implements Element.
func (p *Progressive) Seek(t float64) { p.head.seek(t) }

// Duration implements Element.
func (p *Progressive) Duration() float64 { return p.head.durationValue() }

// Buffered implements Element. Without a content length or duration
// nothing is reported.
func (p *Progressive) Buffered() []models.BufferedRange {
	p.mu.Lock()
	total, loaded := p.total, p.loaded
	p.mu.Unlock()
	d := p.head.durationValue()
	if total <= 0 || !known(d) {
		return nil
	}
	frac := float64(loaded) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return models.NormalizeRanges([]models.BufferedRange{{Start: 0, End: frac * d}})
}

// SetMuted implements Element.
func (p *Progressive) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Muted reports the mute flag.
func (p *Progressive) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetLoop implements Element.
func (p *Progressive) SetLoop(loop bool) { p.head.setLoop(loop) }

// Subscribe implements Element.
func (p *Progressive) Subscribe(fn func(Event)) func() { return p.events.subscribe(fn) }

// Unload implements Element.
func (p *Progressive) Unload() {
	p.mu.Lock()
	if p.unloaded {
		p.mu.Unlock()
		return
	}
	p.unloaded = true
	p.loadGen++
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.head.stop()
	p.events.close()
}

// countingReader reports every successful read.
type countingReader struct {
	r      io.Reader
	onRead func(n int64)
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.onRead(int64(n))
	}
	return n, err
}
