// Package settings persists client-side preferences, most importantly the
// compatibility level that bounds which representations the player picks.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/mohaanymo/rainbow/internal/capability"
)

// Settings is the persisted client state.
type Settings struct {
	// CompatLevel is the capability tier, 1 (most capable) to 4.
	CompatLevel int  `json:"clevel"`
	Muted       bool `json:"muted,omitempty"`
}

// Defaults returns the settings used when nothing is persisted.
func Defaults() Settings {
	return Settings{CompatLevel: int(capability.DefaultTier)}
}

// DefaultPath returns the settings file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "rainbow", "settings.json"), nil
}

// Store caches the settings file and writes it back atomically.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Open loads the settings at path. A missing file yields the defaults.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the cached settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Tier returns the cached compatibility level as a clamped tier.
func (s *Store) Tier() capability.Tier {
	return capability.Tier(s.Get().CompatLevel).Clamp()
}

// Reload re-reads the file into the cache.
func (s *Store) Reload() error {
	loaded, err := load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the settings and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	if err := save(s.path, next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// SetTier persists a new compatibility level.
func (s *Store) SetTier(t capability.Tier) error {
	return s.Update(func(st *Settings) { st.CompatLevel = int(t.Clamp()) })
}

func load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	st := Defaults()
	if err := json.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	st.CompatLevel = int(capability.Tier(st.CompatLevel).Clamp())
	return st, nil
}

func save(path string, st Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
