package config

// Config is the root configuration structure.
type Config struct {
	Streamer StreamerConfig `toml:"streamer"`
	Remote   RemoteConfig   `toml:"remote"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// StreamerConfig holds Naim streamer connection settings.
type StreamerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Name string `toml:"name"`

	// NotifyPort is the local port for UPnP event callbacks. Zero picks an
	// ephemeral port.
	NotifyPort int `toml:"notify_port"`

	// SubscriptionTimeout is the requested GENA lease in seconds.
	SubscriptionTimeout int `toml:"subscription_timeout"`

	// FallbackPollSeconds controls the polling interval used when event
	// subscriptions are down. Zero disables the fallback poll.
	FallbackPollSeconds int `toml:"fallback_poll_seconds"`

	InvokeTimeoutSeconds int `toml:"invoke_timeout_seconds"`
}

// RemoteConfig holds Broadlink IR/RF bridge settings.
type RemoteConfig struct {
	Host string `toml:"host"`
	MAC  string `toml:"mac"`

	// Buttons is the path to the learned-code catalog file.
	Buttons string `toml:"buttons"`

	DebounceMS int `toml:"debounce_ms"`
}

// ServerConfig holds the host-platform HTTP API settings.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}
