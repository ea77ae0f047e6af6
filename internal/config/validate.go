package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Streamer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("streamer: %w", err))
	}
	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks StreamerConfig for errors.
func (c *StreamerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("port must be between 0 and 65535")
	}
	if c.NotifyPort < 0 || c.NotifyPort > 65535 {
		return errors.New("notify_port must be between 0 and 65535")
	}
	if c.SubscriptionTimeout < 0 {
		return errors.New("subscription_timeout must be non-negative")
	}
	if c.FallbackPollSeconds < 0 {
		return errors.New("fallback_poll_seconds must be non-negative")
	}
	return nil
}

// Validate checks RemoteConfig for errors.
func (c *RemoteConfig) Validate() error {
	if c.DebounceMS < 0 {
		return errors.New("debounce_ms must be non-negative")
	}
	if c.MAC != "" {
		if _, err := net.ParseMAC(c.MAC); err != nil {
			return fmt.Errorf("invalid mac: %w", err)
		}
	}
	return nil
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.Listen == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid listen port: %w", err)
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	return nil
}
