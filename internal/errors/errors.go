package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrUnreachable    = errors.New("device unreachable")
	ErrIncompatible   = errors.New("incompatible device")
	ErrUnsupported    = errors.New("not supported by device")
	ErrUnknownButton  = errors.New("unknown button")
	ErrNoRemote       = errors.New("no remote bridge configured")
	ErrNetworkError   = errors.New("network error")
	ErrTimeout        = errors.New("request timeout")
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// StreamError wraps an error with a user-friendly suggestion.
type StreamError struct {
	Err        error
	Suggestion string
}

func (e *StreamError) Error() string {
	return e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &StreamError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) && streamErr.Suggestion != "" {
		return streamErr.Suggestion
	}

	errStr := strings.ToLower(err.Error())

	if errors.Is(err, ErrDeviceNotFound) || strings.Contains(errStr, "device not found") {
		return "Check the streamer host in your config, or run 'nstream discover'"
	}

	if errors.Is(err, ErrUnreachable) {
		return "The streamer is not responding. Check that it is powered on and on the network"
	}

	if errors.Is(err, ErrIncompatible) {
		return "This device does not expose AVTransport control and cannot be managed"
	}

	if errors.Is(err, ErrUnsupported) {
		return "The connected streamer does not support this command"
	}

	if errors.Is(err, ErrUnknownButton) {
		return "Run 'nstream buttons' to list the learned remote buttons"
	}

	if errors.Is(err, ErrNoRemote) {
		return "Set [remote] host in your config to enable IR/RF buttons"
	}

	if errors.Is(err, ErrNetworkError) || errors.Is(err, ErrTimeout) ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused") {
		return "Check your network connection and try again"
	}

	if errors.Is(err, ErrConfigNotFound) || strings.Contains(errStr, "config") {
		return "Create ~/.config/nstream/config.toml with a [streamer] section"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}
