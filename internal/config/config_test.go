package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Streamer.Port != 8080 {
		t.Errorf("Streamer.Port = %d, want 8080", cfg.Streamer.Port)
	}
	if cfg.Streamer.SubscriptionTimeout != 300 {
		t.Errorf("SubscriptionTimeout = %d, want 300", cfg.Streamer.SubscriptionTimeout)
	}
	if cfg.Remote.DebounceMS != 400 {
		t.Errorf("Remote.DebounceMS = %d, want 400", cfg.Remote.DebounceMS)
	}
	if cfg.Server.Listen != "127.0.0.1:8475" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Streamer.Port = 9000
	cfg.Log.Level = "debug"
	cfg.ApplyDefaults()

	if cfg.Streamer.Port != 9000 {
		t.Errorf("Streamer.Port = %d, defaults must not clobber explicit values", cfg.Streamer.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[streamer]
host = "10.0.0.42"
name = "NDX"

[remote]
host = "10.0.0.43"
mac = "34:ea:34:12:ab:cd"
buttons = "/etc/nstream/buttons.toml"

[log]
level = "warn"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Streamer.Host != "10.0.0.42" || cfg.Streamer.Name != "NDX" {
		t.Errorf("streamer = %+v", cfg.Streamer)
	}
	if cfg.Remote.MAC != "34:ea:34:12:ab:cd" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Unset fields still get defaults.
	if cfg.Streamer.Port != 8080 {
		t.Errorf("Streamer.Port = %d, want default 8080", cfg.Streamer.Port)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadFrom() should fail for a missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NSTREAM_STREAMER_HOST", "10.9.9.9")
	t.Setenv("NSTREAM_STREAMER_PORT", "9090")
	t.Setenv("NSTREAM_SERVER_LISTEN", "0.0.0.0:9999")
	t.Setenv("NSTREAM_LOG_LEVEL", "error")

	cfg := &Config{}
	cfg.Streamer.Host = "from-file"
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if cfg.Streamer.Host != "10.9.9.9" {
		t.Errorf("Streamer.Host = %q, env must win over file", cfg.Streamer.Host)
	}
	if cfg.Streamer.Port != 9090 {
		t.Errorf("Streamer.Port = %d, want 9090", cfg.Streamer.Port)
	}
	if cfg.Server.Listen != "0.0.0.0:9999" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestEnvOverrideBadPortIgnored(t *testing.T) {
	t.Setenv("NSTREAM_STREAMER_PORT", "not-a-port")

	cfg := &Config{}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if cfg.Streamer.Port != 8080 {
		t.Errorf("Streamer.Port = %d, unparseable override must be ignored", cfg.Streamer.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"bad port", func(c *Config) { c.Streamer.Port = 70000 }, "port"},
		{"negative poll", func(c *Config) { c.Streamer.FallbackPollSeconds = -1 }, "fallback_poll_seconds"},
		{"bad mac", func(c *Config) { c.Remote.MAC = "zz:zz" }, "mac"},
		{"negative debounce", func(c *Config) { c.Remote.DebounceMS = -5 }, "debounce_ms"},
		{"bad listen", func(c *Config) { c.Server.Listen = "no-port-here" }, "listen"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mut(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Streamer.Port = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "streamer") || !strings.Contains(msg, "log") {
		t.Errorf("joined error %q should report both sections", msg)
	}
}
