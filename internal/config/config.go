// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Package config loads livetrack configuration with koanf.
//
// Precedence, lowest to highest:
//  1. built-in defaults (defaultConfig)
//  2. optional YAML file (LIVETRACK_CONFIG or the first of DefaultConfigPaths)
//  3. environment variables listed in envMappings
//
// The server and the tracking client share one Config type but validate
// different sections: LoadServer checks everything a server needs, LoadClient
// only what a tracking view needs (notably Client.ServerURL, which has no
// default and is fatal when missing).
package config

import "time"

// ConfigPathEnvVar names the environment variable holding a config file path.
const ConfigPathEnvVar = "LIVETRACK_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"./livetrack.yaml",
	"./config/livetrack.yaml",
	"/etc/livetrack/livetrack.yaml",
}

// Config is the complete configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Tracking TrackingConfig `koanf:"tracking"`
	Store    StoreConfig    `koanf:"store"`
	Events   EventsConfig   `koanf:"events"`
	Client   ClientConfig   `koanf:"client"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TrackingConfig tunes the broadcaster and the push endpoint.
type TrackingConfig struct {
	// IdleTimeout reclaims a session with no pings and no subscribers.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	// ReapInterval is how often idle sessions are looked for.
	ReapInterval time.Duration `koanf:"reap_interval"`
	// SubscriberBuffer is the per-subscriber queue depth. When full the
	// oldest queued sample is dropped.
	SubscriberBuffer int `koanf:"subscriber_buffer"`
	// HeartbeatInterval paces heartbeat frames on the push channel. It must
	// be shorter than the client's push grace period.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	// IngestRatePerSecond limits pings per session. Zero disables the limit.
	IngestRatePerSecond float64 `koanf:"ingest_rate_per_second"`
	IngestBurst         int     `koanf:"ingest_burst"`
}

// StoreConfig is the BadgerDB last-known-sample store.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// Retention is the TTL of a stored sample.
	Retention  time.Duration `koanf:"retention"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// EventsConfig is the sample event stream used for multi-instance fan-out.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`
	// Driver is "nats" or "memory".
	Driver string `koanf:"driver"`
	Topic  string `koanf:"topic"`
	// InstanceID tags published events so an instance ignores its own.
	// Empty means a random id per process.
	InstanceID string     `koanf:"instance_id"`
	NATS       NATSConfig `koanf:"nats"`
}

// NATSConfig is the NATS connection and optional embedded server.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	Embedded       bool          `koanf:"embedded"`
	StoreDir       string        `koanf:"store_dir"`
	JetStream      bool          `koanf:"jetstream"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// ClientConfig drives a tracking view (transport controller and poller).
type ClientConfig struct {
	ServerURL         string        `koanf:"server_url"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	PushGracePeriod   time.Duration `koanf:"push_grace_period"`
	PushRetryInterval time.Duration `koanf:"push_retry_interval"`
	HTTPTimeout       time.Duration `koanf:"http_timeout"`
	Easing            string        `koanf:"easing"`
	MaxSegment        time.Duration `koanf:"max_segment"`
	Breaker           BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the gobreaker circuit breaker around fetches.
type BreakerConfig struct {
	MaxRequests         uint32        `koanf:"max_requests"`
	Interval            time.Duration `koanf:"interval"`
	Timeout             time.Duration `koanf:"timeout"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
}

// SecurityConfig holds HTTP edge protections.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Tracking: TrackingConfig{
			IdleTimeout:         30 * time.Minute,
			ReapInterval:        time.Minute,
			SubscriberBuffer:    16,
			HeartbeatInterval:   10 * time.Second,
			IngestRatePerSecond: 5,
			IngestBurst:         10,
		},
		Store: StoreConfig{
			Enabled:    false,
			Path:       "/data/livetrack",
			Retention:  24 * time.Hour,
			GCInterval: 10 * time.Minute,
		},
		Events: EventsConfig{
			Enabled: false,
			Driver:  "nats",
			Topic:   "livetrack.samples",
			NATS: NATSConfig{
				URL:            "nats://127.0.0.1:4222",
				StoreDir:       "/data/nats",
				JetStream:      false,
				MaxReconnects:  -1,
				ReconnectWait:  2 * time.Second,
				PublishTimeout: 5 * time.Second,
			},
		},
		Client: ClientConfig{
			PollInterval:      5 * time.Second,
			PushGracePeriod:   15 * time.Second,
			PushRetryInterval: 30 * time.Second,
			HTTPTimeout:       10 * time.Second,
			Easing:            "linear",
			MaxSegment:        10 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
