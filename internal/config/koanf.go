// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// LoadServer loads and validates configuration for the server binary.
// path overrides the config file search when non-empty.
func LoadServer(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadClient loads and validates configuration for a tracking client.
func LoadClient(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration, unvalidated.
func Defaults() *Config {
	return defaultConfig()
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that are already slices (from YAML or defaults) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed are ignored so unrelated environment never leaks in.
var envMappings = map[string]string{
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"http_shutdown_timeout":  "server.shutdown_timeout",
	"session_idle_timeout":   "tracking.idle_timeout",
	"session_reap_interval":  "tracking.reap_interval",
	"subscriber_buffer":      "tracking.subscriber_buffer",
	"heartbeat_interval":     "tracking.heartbeat_interval",
	"ingest_rate_per_second": "tracking.ingest_rate_per_second",
	"ingest_burst":           "tracking.ingest_burst",

	"store_enabled":     "store.enabled",
	"store_path":        "store.path",
	"store_retention":   "store.retention",
	"store_gc_interval": "store.gc_interval",
	"store_sync_writes": "store.sync_writes",

	"events_enabled":        "events.enabled",
	"events_driver":         "events.driver",
	"events_topic":          "events.topic",
	"events_instance_id":    "events.instance_id",
	"nats_url":              "events.nats.url",
	"nats_embedded":         "events.nats.embedded",
	"nats_store_dir":        "events.nats.store_dir",
	"nats_jetstream":        "events.nats.jetstream",
	"nats_max_reconnects":   "events.nats.max_reconnects",
	"nats_reconnect_wait":   "events.nats.reconnect_wait",
	"nats_publish_timeout":  "events.nats.publish_timeout",

	"livetrack_server_url":         "client.server_url",
	"poll_interval":                "client.poll_interval",
	"push_grace_period":            "client.push_grace_period",
	"push_retry_interval":          "client.push_retry_interval",
	"client_http_timeout":          "client.http_timeout",
	"animation_easing":             "client.easing",
	"animation_max_segment":        "client.max_segment",
	"breaker_max_requests":         "client.breaker.max_requests",
	"breaker_interval":             "client.breaker.interval",
	"breaker_timeout":              "client.breaker.timeout",
	"breaker_consecutive_failures": "client.breaker.consecutive_failures",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// "" to skip it.
//
//	HTTP_PORT            -> server.port
//	LIVETRACK_SERVER_URL -> client.server_url
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
