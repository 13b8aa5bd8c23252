// Package rainbow is an adaptive media-playback controller. It keeps a
// scrub control in step with a buffering, seekable media element, swaps
// sources with a time offset and filters adaptive representations by
// client capability.
//
// Basic usage:
//
//	p, err := rainbow.New(page,
//		rainbow.WithServerURL("http://gallery.local:5000"),
//		rainbow.WithTier(rainbow.TierBasic),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	s, err := p.Open(ctx, p.Describe("http://gallery.local:5000/media/clip.webm"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	s.TogglePlayPause()
package rainbow

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohaanymo/rainbow/internal/capability"
	"github.com/mohaanymo/rainbow/internal/config"
	"github.com/mohaanymo/rainbow/internal/httpclient"
	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/parser"
	"github.com/mohaanymo/rainbow/internal/player"
	"github.com/mohaanymo/rainbow/internal/probe"
)

// Player opens media descriptors into playback sessions, one at a time.
type Player struct {
	cfg      *config.Config
	log      zerolog.Logger
	client   *http.Client
	registry *parser.Registry
	prober   *probe.Client
	viewer   *player.Viewer
}

type builder struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  player.Clock
	muted  bool
	hooks  func(player.Options) player.Options
}

// Option configures the player.
type Option func(*builder)

// New creates a Player attached to page.
func New(page Page, opts ...Option) (*Player, error) {
	b := &builder{cfg: config.New(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.Normalize(); err != nil {
		return nil, err
	}
	cfg := b.cfg

	client := httpclient.New(httpclient.Config{
		Headers:     cfg.Headers,
		BytesPerSec: cfg.MaxBandwidth,
	})
	// Manifests and probes are small; they get the configured deadline.
	metaClient := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Headers: cfg.Headers,
	})

	p := &Player{
		cfg:      cfg,
		log:      b.logger,
		client:   client,
		registry: parser.NewRegistry(metaClient, cfg.Headers),
		prober:   probe.NewClient(metaClient, b.logger.With().Str("component", "probe").Logger()),
	}

	base := player.Options{
		Page:              page,
		Prober:            p.prober,
		Tier:              capability.Tier(cfg.Tier),
		Clock:             b.clock,
		Logger:            b.logger,
		InactivityTimeout: cfg.InactivityTimeout,
		PollInterval:      cfg.PollInterval,
		Touch:             cfg.Touch,
		NoAutoplay:        !cfg.Autoplay,
		Muted:             b.muted,
	}
	if b.hooks != nil {
		base = b.hooks(base)
	}
	p.viewer = player.NewViewer(p.elementFor, base)
	return p, nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg *config.Config) Option {
	return func(b *builder) {
		if cfg != nil {
			b.cfg = cfg
		}
	}
}

// WithServerURL sets the gallery server used for duration probes.
func WithServerURL(serverURL string) Option {
	return func(b *builder) {
		b.cfg.ServerURL = serverURL
	}
}

// WithTier sets the client compatibility tier (1 best .. 4 minimal).
func WithTier(t Tier) Option {
	return func(b *builder) {
		b.cfg.Tier = int(t)
	}
}

// WithHeaders sets custom HTTP headers for every request.
func WithHeaders(headers map[string]string) Option {
	return func(b *builder) {
		for k, v := range headers {
			b.cfg.Headers[k] = v
		}
	}
}

// WithHeader adds a single HTTP header.
func WithHeader(key, value string) Option {
	return func(b *builder) {
		b.cfg.Headers[key] = value
	}
}

// WithMaxBandwidth caps media loading in bytes per second.
// Set to 0 for unlimited (default).
func WithMaxBandwidth(bytesPerSec int64) Option {
	return func(b *builder) {
		b.cfg.MaxBandwidth = bytesPerSec
	}
}

// WithWorkers sets the number of concurrent segment fetches (default: 4, max: 32).
func WithWorkers(n int) Option {
	return func(b *builder) {
		b.cfg.Workers = n
	}
}

// WithInactivityTimeout sets how long controls stay up without input (5s to 10s).
func WithInactivityTimeout(d time.Duration) Option {
	return func(b *builder) {
		b.cfg.InactivityTimeout = d
	}
}

// WithTouch marks the page as a touch device; pointer-leave never hides controls.
func WithTouch(touch bool) Option {
	return func(b *builder) {
		b.cfg.Touch = touch
	}
}

// WithAutoplay controls whether playback starts once enough is buffered.
func WithAutoplay(autoplay bool) Option {
	return func(b *builder) {
		b.cfg.Autoplay = autoplay
	}
}

// WithMuted starts sessions muted.
func WithMuted(muted bool) Option {
	return func(b *builder) {
		b.muted = muted
	}
}

// WithLogger sets the logger for the player and its sessions.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

// WithClock replaces the wall clock driving polls and timeouts.
func WithClock(clock player.Clock) Option {
	return func(b *builder) {
		b.clock = clock
	}
}

// WithSessionHooks lets a host adjust every session's options, typically
// to install OnChange, OnClosed and Measure.
func WithSessionHooks(fn func(player.Options) player.Options) Option {
	return func(b *builder) {
		b.hooks = fn
	}
}

// Describe builds a descriptor for a media URL. With a server configured
// the descriptor gets a duration probe URL for the media path.
func (p *Player) Describe(mediaURL string) Descriptor {
	desc := models.DescriptorFor(mediaURL)
	if p.cfg.ServerURL == "" {
		return desc
	}
	mediaPath := mediaURL
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		mediaPath = u.Path
	}
	desc.ProbeURL = probe.URLFor(p.cfg.ServerURL, mediaPath)
	return desc
}

// Open closes the current session, if any, and starts one for desc.
func (p *Player) Open(ctx context.Context, desc Descriptor) (*Session, error) {
	p.log.Info().Str("src", desc.SourceURL).Bool("adaptive", desc.Adaptive()).Msg("opening media")
	return p.viewer.Open(ctx, desc)
}

// Current returns the open session, or nil.
func (p *Player) Current() *Session {
	return p.viewer.Current()
}

// Viewer exposes the underlying viewer for hosts that drive it directly.
func (p *Player) Viewer() *player.Viewer {
	return p.viewer
}

// Close closes the current session and restores the page.
func (p *Player) Close() error {
	p.viewer.Close()
	return nil
}

// elementFor builds an adaptive element for manifests and a progressive
// one otherwise.
func (p *Player) elementFor(desc models.MediaDescriptor) media.Element {
	opts := media.Options{
		Client:  p.client,
		Logger:  p.log.With().Str("component", "media").Logger(),
		Workers: p.cfg.Workers,
	}
	if desc.Adaptive() {
		return media.NewAdaptive(opts, p.registry)
	}
	return media.NewProgressive(opts)
}
