package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "brisket"

func ConfigDir() string {
	if v := os.Getenv("BRISKET_CONFIG_DIR"); v != "" {
		return v
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// DefaultDataDir is the snapshot root used when data_dir is unset.
func DefaultDataDir() string {
	return filepath.Join(xdg.CacheHome, appName)
}

func ConfigFile() string { return filepath.Join(ConfigDir(), "config.toml") }
func EnvFile() string    { return filepath.Join(ConfigDir(), ".env") }
