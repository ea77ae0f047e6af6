package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.nstreamrc, $XDG_CONFIG_HOME/nstream/config.toml,
// ~/.config/nstream/config.toml
func Load() (*Config, error) {
	// A local .env file may carry NSTREAM_* overrides; missing is fine.
	_ = godotenv.Load()

	cfg := &Config{}

	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".nstreamrc"),
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "nstream", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Streamer
	if v := os.Getenv("NSTREAM_STREAMER_HOST"); v != "" {
		cfg.Streamer.Host = v
	}
	if v := os.Getenv("NSTREAM_STREAMER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Streamer.Port = i
		}
	}
	if v := os.Getenv("NSTREAM_STREAMER_NAME"); v != "" {
		cfg.Streamer.Name = v
	}

	// Remote bridge
	if v := os.Getenv("NSTREAM_REMOTE_HOST"); v != "" {
		cfg.Remote.Host = v
	}
	if v := os.Getenv("NSTREAM_REMOTE_BUTTONS"); v != "" {
		cfg.Remote.Buttons = v
	}

	// Server
	if v := os.Getenv("NSTREAM_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}

	// Log
	if v := os.Getenv("NSTREAM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NSTREAM_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
