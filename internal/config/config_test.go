package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/probez"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probez.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
collector:
  max_depth: 16
  unscoped_capacity: 32
  call_site_names: false
sink:
  workers: 2
  queue_size: 8
logging:
  level: debug
  development: true
metrics:
  enabled: true
  namespace: demo
demo:
  contexts: 4
  iterations: 10
  recursion_depth: 5
  pause: 250ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 16, *cfg.Collector.MaxDepth)
	assert.Equal(t, 32, cfg.Collector.UnscopedCapacity)
	assert.False(t, *cfg.Collector.CallSiteNames)
	assert.Equal(t, 2, cfg.Sink.Workers)
	assert.Equal(t, 8, cfg.Sink.QueueSize)
	assert.Equal(t, 1000, cfg.Sink.BufferSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "demo", cfg.Metrics.Namespace)
	assert.Equal(t, 4, cfg.Demo.Contexts)
	assert.Equal(t, 10, cfg.Demo.Iterations)
	assert.Equal(t, 5, cfg.Demo.RecursionDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.Demo.Pause)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, probez.DefaultMaxDepth, *cfg.Collector.MaxDepth)
	assert.Equal(t, probez.DefaultUnscopedCapacity, cfg.Collector.UnscopedCapacity)
	assert.True(t, *cfg.Collector.CallSiteNames)
	assert.Equal(t, probez.DefaultWorkers, cfg.Sink.Workers)
	assert.Equal(t, probez.DefaultQueueSize, cfg.Sink.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, probez.DefaultNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, 1, cfg.Demo.Contexts)
	assert.Equal(t, 3, cfg.Demo.Iterations)
	assert.Equal(t, 3, cfg.Demo.RecursionDepth)
	assert.Equal(t, 100*time.Millisecond, cfg.Demo.Pause)

	assert.Equal(t, cfg, Default())
}

func TestLoadConfig_ZeroMaxDepthDisablesLimit(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "collector:\n  max_depth: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, *cfg.Collector.MaxDepth)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "demo:\n  contexts: 2\n")
	t.Setenv("PROBEZ_DEMO_CONTEXTS", "7")
	t.Setenv("PROBEZ_LOG_LEVEL", "warn")
	t.Setenv("PROBEZ_CALL_SITE_NAMES", "false")
	t.Setenv("PROBEZ_DEMO_PAUSE", "1s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Demo.Contexts)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, *cfg.Collector.CallSiteNames)
	assert.Equal(t, time.Second, cfg.Demo.Pause)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "collector: [unclosed"))
		assert.Error(t, err)
	})
	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("PROBEZ_SINK_WORKERS", "many")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "PROBEZ_SINK_WORKERS")
	})
	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "logging:\n  level: verbose\n"))
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestConfig_Validate(t *testing.T) {
	negative := -1
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "negative max depth", mutate: func(c *Config) { c.Collector.MaxDepth = &negative }, expectError: true},
		{name: "zero unscoped capacity", mutate: func(c *Config) { c.Collector.UnscopedCapacity = 0 }, expectError: true},
		{name: "negative workers", mutate: func(c *Config) { c.Sink.Workers = -1 }, expectError: true},
		{name: "workers without queue", mutate: func(c *Config) { c.Sink.QueueSize = 0 }, expectError: true},
		{name: "no pool", mutate: func(c *Config) { c.Sink.Workers = 0; c.Sink.QueueSize = 0 }},
		{name: "zero buffer", mutate: func(c *Config) { c.Sink.BufferSize = 0 }, expectError: true},
		{name: "metrics without namespace", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Namespace = ""
		}, expectError: true},
		{name: "no contexts", mutate: func(c *Config) { c.Demo.Contexts = 0 }, expectError: true},
		{name: "negative pause", mutate: func(c *Config) { c.Demo.Pause = -time.Second }, expectError: true},
		{name: "upper-case level", mutate: func(c *Config) { c.Logging.Level = "WARN" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ProbeOptions(t *testing.T) {
	cfg := Default()
	depth := 2
	disabled := false
	cfg.Collector.MaxDepth = &depth
	cfg.Collector.CallSiteNames = &disabled
	cfg.Collector.UnscopedCapacity = 5
	cfg.Sink.Workers = 1
	cfg.Sink.QueueSize = 3

	p := probez.New(cfg.ProbeOptions()...)
	defer p.Close()

	opts := p.Options()
	assert.Equal(t, 2, opts.MaxDepth)
	assert.False(t, opts.CallSiteNames)
	assert.Equal(t, 5, opts.UnscopedCapacity)
	assert.Equal(t, 1, opts.Workers)
	assert.Equal(t, 3, opts.QueueSize)
}
