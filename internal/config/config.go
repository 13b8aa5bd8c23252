// Package config provides configuration types for the player.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Common errors.
var (
	ErrMissingURL     = errors.New("URL is required")
	ErrInvalidTier    = errors.New("tier must be between 1 and 4")
	ErrInvalidTimeout = errors.New("inactivity timeout must be between 5s and 10s")
)

// Config holds all application configuration.
type Config struct {
	// Input
	URL       string `yaml:"-"`
	ServerURL string `yaml:"server_url"`

	// Client settings
	SettingsPath string `yaml:"settings_path"`
	Tier         int    `yaml:"tier"` // 0 = use persisted clevel

	// Loading
	Workers      int               `yaml:"workers"`
	MaxBandwidth int64             `yaml:"max_bandwidth"` // bytes per second, 0 = unlimited
	Timeout      time.Duration     `yaml:"timeout"`
	Headers      map[string]string `yaml:"headers"`

	// Player
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Touch             bool          `yaml:"touch"`
	Autoplay          bool          `yaml:"autoplay"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default configuration values.
const (
	DefaultWorkers           = 4
	DefaultTimeout           = 30 * time.Second
	DefaultInactivityTimeout = 10 * time.Second
	DefaultPollInterval      = time.Second / 8
	DefaultLogLevel          = "info"

	MinInactivityTimeout = 5 * time.Second
	MaxInactivityTimeout = 10 * time.Second

	MaxWorkers = 32
	MinWorkers = 1
)

// New returns a Config with sensible defaults.
func New() *Config {
	return &Config{
		Workers:           DefaultWorkers,
		Timeout:           DefaultTimeout,
		InactivityTimeout: DefaultInactivityTimeout,
		PollInterval:      DefaultPollInterval,
		Autoplay:          true,
		LogLevel:          DefaultLogLevel,
		Headers:           make(map[string]string),
	}
}

// Load reads a YAML file over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid and normalizes values.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	return c.Normalize()
}

// Normalize checks and normalizes everything but the input URL.
func (c *Config) Normalize() error {
	if c.Tier < 0 || c.Tier > 4 {
		return ErrInvalidTier
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.InactivityTimeout < MinInactivityTimeout || c.InactivityTimeout > MaxInactivityTimeout {
		return ErrInvalidTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	// Clamp workers to valid range
	if c.Workers < MinWorkers {
		c.Workers = MinWorkers
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}

	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}

	return nil
}
