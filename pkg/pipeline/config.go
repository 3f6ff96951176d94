package pipeline

import (
	"os"
	"strconv"
	"time"
)

// Config controls orchestrator polling behavior.
type Config struct {
	PollInterval time.Duration // How often the poll loop fetches status. Default 5s.
	UpdateBuffer int           // Capacity of the status update channel. Default 4.
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 5 * time.Second,
		UpdateBuffer: 4,
	}
}

// ConfigFromEnv loads config from environment variables.
// PREPLINE_POLL_INTERVAL_SECONDS, PREPLINE_UPDATE_BUFFER
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("PREPLINE_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("PREPLINE_UPDATE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.UpdateBuffer = n
		}
	}

	return cfg
}
