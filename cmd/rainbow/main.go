package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohaanymo/rainbow"
	"github.com/mohaanymo/rainbow/internal/config"
	"github.com/mohaanymo/rainbow/internal/log"
	"github.com/mohaanymo/rainbow/internal/player"
	"github.com/mohaanymo/rainbow/internal/settings"
	"github.com/mohaanymo/rainbow/internal/tui"
)

// Params are the command line flags. Zero values leave the config file
// (or its defaults) in charge.
type Params struct {
	URL         string   `pos:"true" required:"true" help:"Media URL (progressive file, .mpd or .m3u8)."`
	Config      string   `short:"c" optional:"true" help:"YAML config file."`
	Server      string   `short:"s" optional:"true" help:"Gallery server used for duration probes."`
	Tier        int      `short:"t" optional:"true" default:"0" help:"Compatibility tier, 1 (best) to 4. 0 uses the saved clevel."`
	Poster      string   `optional:"true" help:"Poster image URL."`
	Subtitles   string   `optional:"true" help:"Subtitles URL."`
	Alternate   string   `short:"a" optional:"true" help:"Alternate encoding URL, seekable with ?seek=<sec>."`
	Encoding    string   `optional:"true" help:"Encoding of the source."`
	AltEncoding string   `optional:"true" help:"Encoding of the alternate source."`
	Header      []string `short:"H" optional:"true" help:"Custom header 'Key: Value' (repeatable)."`
	Bandwidth   int64    `short:"b" optional:"true" default:"0" help:"Loading cap in bytes per second, 0 for unlimited."`
	Touch       bool     `optional:"true" help:"Touch device: leaving the window never hides controls."`
	NoAutoplay  bool     `optional:"true" help:"Wait for play instead of starting once buffered."`
	Settings    string   `optional:"true" help:"Settings file (default: user config dir)."`
	LogLevel    string   `short:"l" optional:"true" help:"Log level."`
	LogFile     string   `optional:"true" help:"Log file; logging is off without one."`
}

func main() {
	boa.CmdT[Params]{
		Use:         "rainbow <url>",
		Short:       "Terminal media player with adaptive streaming and a buffered scrub bar",
		Version:     appVersion(),
		ParamEnrich: boa.ParamEnricherCombine(boa.ParamEnricherBool, boa.ParamEnricherName, boa.ParamEnricherShort),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := run(ctx, params, os.Stderr); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				cancel()
				os.Exit(1)
			}
		},
	}.Run()
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "dev"
	}
	return bi.Main.Version
}

// loadConfig reads the config file and lays the flags over it.
func loadConfig(params *Params) (*config.Config, error) {
	cfg, err := config.Load(params.Config)
	if err != nil {
		return nil, err
	}
	cfg.URL = params.URL
	if params.Server != "" {
		cfg.ServerURL = params.Server
	}
	if params.Tier != 0 {
		cfg.Tier = params.Tier
	}
	if params.Bandwidth != 0 {
		cfg.MaxBandwidth = params.Bandwidth
	}
	if params.Touch {
		cfg.Touch = true
	}
	if params.NoAutoplay {
		cfg.Autoplay = false
	}
	if params.Settings != "" {
		cfg.SettingsPath = params.Settings
	}
	if params.LogLevel != "" {
		cfg.LogLevel = params.LogLevel
	}
	if params.LogFile != "" {
		cfg.LogFile = params.LogFile
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	for _, h := range params.Header {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
		}
		cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, params *Params, stderr io.Writer) error {
	cfg, err := loadConfig(params)
	if err != nil {
		return err
	}

	var logOut io.Writer
	if cfg.LogFile != "" {
		f, err := log.OpenFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Output: logOut})
	logger := log.WithComponent("cli")

	store, err := openSettings(cfg.SettingsPath)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v; using default settings\n", err)
	}
	tier := rainbow.Tier(cfg.Tier)
	muted := false
	if store != nil {
		if tier == 0 {
			tier = store.Tier()
		}
		muted = store.Get().Muted
		w, err := store.Watch(ctx, log.WithComponent("settings"), func(st settings.Settings) {
			logger.Info().Int("clevel", st.CompatLevel).Msg("settings changed; applies to the next opened media")
		})
		if err != nil {
			logger.Warn().Err(err).Msg("settings watch disabled")
		} else {
			defer w.Close()
		}
	}

	host := tui.NewHost()
	var lastMuted atomic.Bool
	lastMuted.Store(muted)
	p, err := rainbow.New(host.Page(),
		rainbow.WithConfig(cfg),
		rainbow.WithTier(tier),
		rainbow.WithMuted(muted),
		rainbow.WithLogger(log.Base()),
		rainbow.WithSessionHooks(func(o player.Options) player.Options {
			o = host.Options(o)
			notify := o.OnChange
			o.OnChange = func(v player.View) {
				lastMuted.Store(v.Muted)
				notify(v)
			}
			return o
		}),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	desc := p.Describe(cfg.URL)
	desc.PosterURL = params.Poster
	desc.SubtitlesURL = params.Subtitles
	if params.Alternate != "" {
		desc.AlternateAvailable = true
		desc.AlternateURL = params.Alternate
		desc.Encoding = params.Encoding
		desc.AlternateEncoding = params.AltEncoding
	}
	logger.Debug().Str("url", cfg.URL).Int("tier", int(tier)).Str("probe", desc.ProbeURL).Msg("starting player")

	model := tui.NewModel(ctx, p.Viewer(), host, desc, tui.ModelConfig{
		Tier:         int(tier),
		MaxBandwidth: cfg.MaxBandwidth,
	})
	prog := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	)
	host.Attach(prog)

	_, runErr := prog.Run()
	p.Close()

	if store != nil {
		saveMuted(store, lastMuted.Load(), logger)
	}
	if err := model.Err(); err != nil {
		return err
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

func openSettings(path string) (*settings.Store, error) {
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.Open(path)
}

func saveMuted(store *settings.Store, muted bool, logger zerolog.Logger) {
	if store.Get().Muted == muted {
		return
	}
	if err := store.Update(func(st *settings.Settings) { st.Muted = muted }); err != nil {
		logger.Warn().Err(err).Msg("save settings")
	}
}
