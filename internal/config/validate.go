// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fieldops/livetrack/internal/motion"
)

// ErrMissingServerURL is returned by ValidateClient when no server address
// is configured.
var ErrMissingServerURL = errors.New("LIVETRACK_SERVER_URL is required")

// Validate checks everything the server binary uses.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateClient checks everything a tracking client uses.
func (c *Config) ValidateClient() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateTracking() error {
	t := c.Tracking
	if t.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if t.ReapInterval <= 0 {
		return fmt.Errorf("SESSION_REAP_INTERVAL must be positive")
	}
	if t.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be at least 1, got %d", t.SubscriberBuffer)
	}
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	if t.IngestRatePerSecond < 0 {
		return fmt.Errorf("INGEST_RATE_PER_SECOND must not be negative")
	}
	if t.IngestRatePerSecond > 0 && t.IngestBurst < 1 {
		return fmt.Errorf("INGEST_BURST must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("STORE_PATH is required when STORE_ENABLED=true")
	}
	if c.Store.Retention <= 0 {
		return fmt.Errorf("STORE_RETENTION must be positive")
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required when EVENTS_ENABLED=true")
	}
	switch c.Events.Driver {
	case "memory":
		return nil
	case "nats":
		if c.Events.NATS.Embedded {
			return nil
		}
		if err := validateNATSURL(c.Events.NATS.URL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("EVENTS_DRIVER must be nats or memory, got %q", c.Events.Driver)
	}
}

func (c *Config) validateClient() error {
	cl := c.Client
	if strings.TrimSpace(cl.ServerURL) == "" {
		return ErrMissingServerURL
	}
	if err := validateHTTPURL(cl.ServerURL, "LIVETRACK_SERVER_URL"); err != nil {
		return err
	}
	if cl.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cl.PushGracePeriod <= 0 {
		return fmt.Errorf("PUSH_GRACE_PERIOD must be positive")
	}
	if cl.PushRetryInterval <= 0 {
		return fmt.Errorf("PUSH_RETRY_INTERVAL must be positive")
	}
	if cl.HTTPTimeout <= 0 {
		return fmt.Errorf("CLIENT_HTTP_TIMEOUT must be positive")
	}
	if _, err := motion.EasingByName(cl.Easing); err != nil {
		return fmt.Errorf("ANIMATION_EASING: %w", err)
	}
	if cl.Breaker.ConsecutiveFailures == 0 {
		return fmt.Errorf("BREAKER_CONSECUTIVE_FAILURES must be at least 1")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitRequests)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

// validateHTTPURL accepts an http(s) base URL with no query. A path prefix is
// allowed so the server can sit behind a reverse proxy.
func validateHTTPURL(rawURL, fieldName string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters", fieldName)
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
