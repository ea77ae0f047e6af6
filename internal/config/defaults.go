package config

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Streamer: StreamerConfig{
			Port:                 8080,
			SubscriptionTimeout:  300,
			FallbackPollSeconds:  30,
			InvokeTimeoutSeconds: 10,
		},
		Remote: RemoteConfig{
			DebounceMS: 400,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8475",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Streamer
	if c.Streamer.Port == 0 {
		c.Streamer.Port = d.Streamer.Port
	}
	if c.Streamer.SubscriptionTimeout == 0 {
		c.Streamer.SubscriptionTimeout = d.Streamer.SubscriptionTimeout
	}
	if c.Streamer.FallbackPollSeconds == 0 {
		c.Streamer.FallbackPollSeconds = d.Streamer.FallbackPollSeconds
	}
	if c.Streamer.InvokeTimeoutSeconds == 0 {
		c.Streamer.InvokeTimeoutSeconds = d.Streamer.InvokeTimeoutSeconds
	}

	// Remote
	if c.Remote.DebounceMS == 0 {
		c.Remote.DebounceMS = d.Remote.DebounceMS
	}

	// Server
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = d.Log.MaxAgeDays
	}
}
