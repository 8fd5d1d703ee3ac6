package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Empty(t, cfg.AgentEndpoints)
	assert.Equal(t, "orchestrator.db", cfg.Queue.Path)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 120, cfg.Dispatch.TimeoutSeconds)
	assert.True(t, cfg.AsyncEnabled())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9100
agent_endpoints:
  - http://burger:8001/.well-known/agent.json
  - http://travel:8002/.well-known/agent.json
event_log_dir: /var/log/orchestrator
discovery:
  timeout_seconds: 3
  refresh_cron: "@every 5m"
queue:
  path: /data/queue.db
  batch_size: 4
  wait_seconds: 2
  lock_seconds: 60
  backoff_seconds: 1
metrics:
  prometheus_url: http://prometheus:9090
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Len(t, cfg.AgentEndpoints, 2)
	assert.Equal(t, "/var/log/orchestrator", cfg.EventLogDir)
	assert.Equal(t, "@every 5m", cfg.Discovery.RefreshCron)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryTimeout())
	assert.Equal(t, "/data/queue.db", cfg.Queue.Path)
	assert.Equal(t, 2*time.Second, cfg.QueueWait())
	assert.Equal(t, time.Minute, cfg.QueueLock())
	assert.Equal(t, time.Second, cfg.QueueBackoff())
	assert.Equal(t, "http://prometheus:9090", cfg.Metrics.PrometheusURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAgentEndpoints, " http://a:1/.well-known/agent.json , http://b:2/.well-known/agent.json ,, ")
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvQueuePath, "/tmp/override.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://a:1/.well-known/agent.json",
		"http://b:2/.well-known/agent.json",
	}, cfg.AgentEndpoints)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "/tmp/override.db", cfg.Queue.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = -1 },
			wantErr: "invalid port",
		},
		{
			name:    "zero discovery timeout",
			mutate:  func(c *Config) { c.Discovery.TimeoutSeconds = 0 },
			wantErr: "discovery timeout",
		},
		{
			name:    "zero dispatch timeout",
			mutate:  func(c *Config) { c.Dispatch.TimeoutSeconds = 0 },
			wantErr: "dispatch timeout",
		},
		{
			name:    "bad batch size with queue enabled",
			mutate:  func(c *Config) { c.Queue.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			// Queue settings are not validated when the async path is off.
			name: "queue disabled skips queue validation",
			mutate: func(c *Config) {
				c.Queue.Path = ""
				c.Queue.BatchSize = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAsyncEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.AsyncEnabled())

	cfg.Queue.Path = ""
	assert.False(t, cfg.AsyncEnabled())
}
