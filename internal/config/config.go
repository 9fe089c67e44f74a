// Package config loads brisket settings from config.toml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"

	"github.com/colthorp/brisket-go/internal/core"
)

type ProviderConfig struct {
	BaseURL    string        `toml:"base_url" default:"https://api.gridstatus.io/v1"`
	APIKey     string        `toml:"api_key"`
	Timeout    time.Duration `toml:"timeout" default:"5m"`
	PageSize   int           `toml:"page_size" default:"10000"`
	MaxRetries int           `toml:"max_retries" default:"3"`
}

type CacheConfig struct {
	Backend string `toml:"backend" default:"filesystem"`
}

type FetchConfig struct {
	Strategy string `toml:"strategy" default:"full_range"`
	Parallel int    `toml:"parallel" default:"2"`
}

type WatchConfig struct {
	Schedule    string        `toml:"schedule" default:"*/5 * * * *"`
	Lookback    time.Duration `toml:"lookback" default:"1h"`
	MetricsAddr string        `toml:"metrics_addr"`
}

type Config struct {
	DataDir  string         `toml:"data_dir"`
	Timezone string         `toml:"timezone" default:"America/Chicago"`
	Provider ProviderConfig `toml:"provider"`
	Cache    CacheConfig    `toml:"cache"`
	Fetch    FetchConfig    `toml:"fetch"`
	Watch    WatchConfig    `toml:"watch"`
}

func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads path (ConfigFile() when empty) over the defaults. A missing file
// is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = ConfigFile()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnvOverrides(cfg), nil
		}
		return applyEnvOverrides(cfg), fmt.Errorf("reading config %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return applyEnvOverrides(DefaultConfig()), fmt.Errorf("parsing config %s: %w", path, err)
	}

	return applyEnvOverrides(cfg), nil
}

// Save writes cfg as TOML to path (ConfigFile() when empty).
func Save(cfg Config, path string) error {
	if path == "" {
		path = ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(core.APIKeyEnvVar); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("BRISKET_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case core.BackendFilesystem, core.BackendBolt:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Fetch.Strategy {
	case core.FetchStrategyFullRange, core.FetchStrategySpan, core.FetchStrategyGaps:
	default:
		return fmt.Errorf("unknown fetch strategy %q", c.Fetch.Strategy)
	}
	if c.Fetch.Parallel < 1 {
		return fmt.Errorf("fetch.parallel must be at least 1, got %d", c.Fetch.Parallel)
	}
	if _, err := core.LoadTZ(c.Timezone); err != nil {
		return err
	}
	return nil
}

// ResolvedDataDir returns DataDir or the default cache location.
func (c Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

// Location resolves Timezone. Validate rejects unknown names; an invalid
// Config that skipped it gets UTC.
func (c Config) Location() *time.Location {
	loc, err := core.LoadTZ(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
