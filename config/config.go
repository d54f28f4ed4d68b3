// Package config loads client settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/adamwoolhether/httpplus/client"
)

// Prefix is prepended to every environment variable, e.g.
// HTTPPLUS_READ_TIMEOUT.
const Prefix = "HTTPPLUS"

// Config holds the settings of a shared client.
type Config struct {
	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	UserAgent         string        `envconfig:"USER_AGENT" default:"httpplus/1.0"`
	ThrottleRPS       int           `envconfig:"THROTTLE_RPS" default:"0"`
	ThrottleBurst     int           `envconfig:"THROTTLE_BURST" default:"0"`
	MaxConcurrent     int           `envconfig:"MAX_CONCURRENT" default:"64"`
	NoFollowRedirects bool          `envconfig:"NO_FOLLOW_REDIRECTS" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		ConnectTimeout: client.DefaultTimeout,
		WriteTimeout:   client.DefaultTimeout,
		ReadTimeout:    client.DefaultTimeout,
		UserAgent:      "httpplus/1.0",
		MaxConcurrent:  64,
	}
}

// Timeouts returns the configured per-phase timeouts.
func (c *Config) Timeouts() client.Timeouts {
	return client.Timeouts{
		Connect: c.ConnectTimeout,
		Write:   c.WriteTimeout,
		Read:    c.ReadTimeout,
	}
}

// Options converts the configuration into client options. A zero
// ThrottleRPS disables throttling; a zero ThrottleBurst defaults to
// ThrottleRPS.
func (c *Config) Options(logger *slog.Logger) []client.Option {
	opts := []client.Option{
		client.WithTimeouts(c.Timeouts()),
		client.WithMaxConcurrent(c.MaxConcurrent),
	}

	if logger != nil {
		opts = append(opts, client.WithLogger(logger))
	}

	if c.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(c.UserAgent))
	}

	if c.ThrottleRPS > 0 {
		burst := c.ThrottleBurst
		if burst <= 0 {
			burst = c.ThrottleRPS
		}
		opts = append(opts, client.WithThrottle(c.ThrottleRPS, burst))
	}

	if c.NoFollowRedirects {
		opts = append(opts, client.WithNoFollowRedirects())
	}

	return opts
}
