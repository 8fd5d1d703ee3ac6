// Package config provides configuration loading and validation for the orchestrator.
//
// Configuration comes from an optional YAML file plus environment overrides.
// Access is value-based: Load returns a Config copy and callers never mutate
// shared state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables honored as overrides.
const (
	EnvAgentEndpoints = "AGENT_ENDPOINTS"
	EnvPort           = "PORT"
	EnvQueuePath      = "ORCHESTRATOR_DB"
)

// DiscoveryConfig controls agent card discovery.
type DiscoveryConfig struct {
	// TimeoutSeconds bounds each per-endpoint card fetch.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// RefreshCron optionally schedules periodic re-discovery, cron syntax.
	RefreshCron string `yaml:"refresh_cron"`
}

// DispatchConfig controls outbound agent task calls.
type DispatchConfig struct {
	// TimeoutSeconds bounds a single agent call. Agents may themselves be
	// multi-step, so this is generous.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// QueueConfig controls the SQLite-backed queue broker and the processor loop.
type QueueConfig struct {
	// Path is the SQLite database file. Empty disables the async path.
	Path string `yaml:"path"`
	// BatchSize is the maximum messages received per processor batch.
	BatchSize int `yaml:"batch_size"`
	// WaitSeconds is the maximum time a batch receive waits for messages.
	WaitSeconds int `yaml:"wait_seconds"`
	// LockSeconds is how long a received message stays invisible before
	// redelivery if neither completed nor dead-lettered.
	LockSeconds int `yaml:"lock_seconds"`
	// BackoffSeconds is the pause after a transport-level receive failure.
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// MetricsConfig controls the optional Prometheus query service used by the
// dashboard. The exposition endpoint is always on.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url"`
}

type Config struct {
	// Port the HTTP API and dashboard listen on.
	Port int `yaml:"port"`
	// AgentEndpoints are the agent card URLs to discover at startup.
	AgentEndpoints []string `yaml:"agent_endpoints"`
	// EventLogDir holds the JSONL event log. Empty disables event logging.
	EventLogDir string `yaml:"event_log_dir"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Queue     QueueConfig     `yaml:"queue"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Port: 8000,
		Discovery: DiscoveryConfig{
			TimeoutSeconds: 10,
		},
		Dispatch: DispatchConfig{
			TimeoutSeconds: 120,
		},
		Queue: QueueConfig{
			Path:           "orchestrator.db",
			BatchSize:      10,
			WaitSeconds:    5,
			LockSeconds:    300,
			BackoffSeconds: 5,
		},
	}
}

// Load reads the config file at path (optional, "" skips the file), applies
// environment overrides, validates, and returns the result by value.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if endpoints := os.Getenv(EnvAgentEndpoints); endpoints != "" {
		cfg.AgentEndpoints = splitEndpoints(endpoints)
	}
	if port := os.Getenv(EnvPort); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if dbPath := os.Getenv(EnvQueuePath); dbPath != "" {
		cfg.Queue.Path = dbPath
	}
}

// splitEndpoints parses a comma-separated endpoint list, dropping blanks.
func splitEndpoints(s string) []string {
	parts := strings.Split(s, ",")
	endpoints := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			endpoints = append(endpoints, trimmed)
		}
	}
	return endpoints
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery timeout must be positive, got %d", c.Discovery.TimeoutSeconds)
	}
	if c.Dispatch.TimeoutSeconds <= 0 {
		return fmt.Errorf("dispatch timeout must be positive, got %d", c.Dispatch.TimeoutSeconds)
	}
	if c.Queue.Path != "" {
		if c.Queue.BatchSize <= 0 {
			return fmt.Errorf("queue batch size must be positive, got %d", c.Queue.BatchSize)
		}
		if c.Queue.WaitSeconds <= 0 {
			return fmt.Errorf("queue wait must be positive, got %d", c.Queue.WaitSeconds)
		}
		if c.Queue.LockSeconds <= 0 {
			return fmt.Errorf("queue lock must be positive, got %d", c.Queue.LockSeconds)
		}
	}
	return nil
}

// DiscoveryTimeout returns the per-endpoint discovery fetch timeout.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// DispatchTimeout returns the outbound agent call timeout.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutSeconds) * time.Second
}

// QueueWait returns the batch receive wait time.
func (c *Config) QueueWait() time.Duration {
	return time.Duration(c.Queue.WaitSeconds) * time.Second
}

// QueueLock returns the message visibility timeout.
func (c *Config) QueueLock() time.Duration {
	return time.Duration(c.Queue.LockSeconds) * time.Second
}

// QueueBackoff returns the pause after a transport-level receive failure.
func (c *Config) QueueBackoff() time.Duration {
	return time.Duration(c.Queue.BackoffSeconds) * time.Second
}

// AsyncEnabled reports whether the queue substrate is configured.
func (c *Config) AsyncEnabled() bool {
	return c.Queue.Path != ""
}
