// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/platform/optimization"
)

// ErrInvalidConfig is returned by Load and Validate for unusable values.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the on-disk server configuration.
type Config struct {
	TickRate   float64       `yaml:"tick_rate"`
	Duration   time.Duration `yaml:"duration"` // 0 runs until interrupted (serve only)
	Players    int           `yaml:"players"`  // counter entities registered at startup
	EventEvery int           `yaml:"event_every"`

	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	RedisAddr  string `yaml:"redis_addr"` // empty disables the status cache

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Profile string `yaml:"profile"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		TickRate:   engine.DefaultTickRate,
		Duration:   0,
		Players:    1,
		EventEvery: 60,
		ListenAddr: ":8080",
		DBPath:     "coreria.db",
		LogLevel:   "info",
		Profile:    optimization.ProfileDefault,
	}
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if math.IsNaN(c.TickRate) || math.IsInf(c.TickRate, 0) || c.TickRate <= 0 {
		return fmt.Errorf("%w: tick_rate must be positive and finite, got %v", ErrInvalidConfig, c.TickRate)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %v", ErrInvalidConfig, c.Duration)
	}
	if c.Players < 0 {
		return fmt.Errorf("%w: players must not be negative, got %d", ErrInvalidConfig, c.Players)
	}
	if c.EventEvery < 1 {
		return fmt.Errorf("%w: event_every must be at least 1, got %d", ErrInvalidConfig, c.EventEvery)
	}
	if _, err := optimization.ForProfile(c.Profile); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Tuning returns the sizing profile named by the config.
func (c *Config) Tuning() *optimization.Config {
	t, err := optimization.ForProfile(c.Profile)
	if err != nil {
		return optimization.DefaultConfig()
	}
	return t
}

// RunSeconds returns the run length for the engine. A zero duration means
// run until interrupted and maps to +Inf.
func (c *Config) RunSeconds() float64 {
	if c.Duration == 0 {
		return math.Inf(1)
	}
	return c.Duration.Seconds()
}
