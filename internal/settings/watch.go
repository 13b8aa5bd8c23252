package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounce collapses the burst of events an editor or atomic rename emits.
const debounce = 100 * time.Millisecond

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	logger   zerolog.Logger
	onChange func(Settings)

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching the store's directory. The file itself is not
// watched because atomic writes replace it. onChange, if set, receives
// the settings after each successful reload.
func (s *Store) Watch(ctx context.Context, logger zerolog.Logger, onChange func(Settings)) (*Watcher, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch settings dir: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		store:    s,
		fsw:      fsw,
		logger:   logger,
		onChange: onChange,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	name := filepath.Clean(w.store.path)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().Str("op", event.Op.String()).Msg("settings file changed")
				w.schedule(ctx)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("settings watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.store.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("settings reload failed")
			return
		}
		st := w.store.Get()
		w.logger.Info().Int("clevel", st.CompatLevel).Msg("settings reloaded")
		if w.onChange != nil {
			w.onChange(st)
		}
	})
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}
