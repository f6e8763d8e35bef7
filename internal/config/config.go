// Package config loads probez settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zoobzio/probez"
)

// Config represents the probez configuration file.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Sink      SinkConfig      `yaml:"sink"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Demo      DemoConfig      `yaml:"demo"`
}

// CollectorConfig contains span stack and unscoped log limits.
type CollectorConfig struct {
	// Maximum open spans per execution context; 0 disables the limit
	MaxDepth *int `yaml:"max_depth" env:"PROBEZ_MAX_DEPTH"`

	// Capacity of the unscoped event and sample logs
	UnscopedCapacity int `yaml:"unscoped_capacity" env:"PROBEZ_UNSCOPED_CAPACITY"`

	// Label unnamed samples with the caller's file:line
	CallSiteNames *bool `yaml:"call_site_names" env:"PROBEZ_CALL_SITE_NAMES"`
}

// SinkConfig sizes trace delivery.
type SinkConfig struct {
	Workers    int `yaml:"workers" env:"PROBEZ_SINK_WORKERS"`
	QueueSize  int `yaml:"queue_size" env:"PROBEZ_SINK_QUEUE_SIZE"`
	BufferSize int `yaml:"buffer_size" env:"PROBEZ_SINK_BUFFER_SIZE"` // Collector hand-off channel
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"PROBEZ_LOG_LEVEL"`
	Development bool   `yaml:"development" env:"PROBEZ_LOG_DEVELOPMENT"`
}

// MetricsConfig controls Prometheus registration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"PROBEZ_METRICS_ENABLED"`
	Namespace string `yaml:"namespace" env:"PROBEZ_METRICS_NAMESPACE"`
}

// DemoConfig drives the sample instrumented client.
type DemoConfig struct {
	Contexts       int           `yaml:"contexts" env:"PROBEZ_DEMO_CONTEXTS"`
	Iterations     int           `yaml:"iterations" env:"PROBEZ_DEMO_ITERATIONS"`
	RecursionDepth int           `yaml:"recursion_depth" env:"PROBEZ_DEMO_RECURSION_DEPTH"`
	Pause          time.Duration `yaml:"pause" env:"PROBEZ_DEMO_PAUSE"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a YAML file, then applies defaults and
// environment overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Collector.MaxDepth != nil && *c.Collector.MaxDepth < 0 {
		return fmt.Errorf("max_depth cannot be negative")
	}
	if c.Collector.UnscopedCapacity <= 0 {
		return fmt.Errorf("unscoped_capacity must be positive")
	}
	if c.Sink.Workers < 0 {
		return fmt.Errorf("sink workers cannot be negative")
	}
	if c.Sink.Workers > 0 && c.Sink.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive when workers are configured")
	}
	if c.Sink.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q, must be debug, info, warn or error", c.Logging.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics namespace is required when metrics are enabled")
	}
	if c.Demo.Contexts <= 0 {
		return fmt.Errorf("demo contexts must be positive")
	}
	if c.Demo.Iterations < 0 {
		return fmt.Errorf("demo iterations cannot be negative")
	}
	if c.Demo.RecursionDepth < 0 {
		return fmt.Errorf("demo recursion_depth cannot be negative")
	}
	if c.Demo.Pause < 0 {
		return fmt.Errorf("demo pause cannot be negative")
	}
	return nil
}

// ProbeOptions converts the collector and sink sections to probe options.
func (c *Config) ProbeOptions() []probez.Option {
	opts := []probez.Option{
		probez.WithUnscopedCapacity(c.Collector.UnscopedCapacity),
		probez.WithWorkerPool(c.Sink.Workers, c.Sink.QueueSize),
	}
	if c.Collector.MaxDepth != nil {
		opts = append(opts, probez.WithMaxDepth(*c.Collector.MaxDepth))
	}
	if c.Collector.CallSiteNames != nil {
		opts = append(opts, probez.WithCallSiteNames(*c.Collector.CallSiteNames))
	}
	return opts
}

func applyDefaults(cfg *Config) {
	if cfg.Collector.MaxDepth == nil {
		depth := probez.DefaultMaxDepth
		cfg.Collector.MaxDepth = &depth
	}
	if cfg.Collector.UnscopedCapacity == 0 {
		cfg.Collector.UnscopedCapacity = probez.DefaultUnscopedCapacity
	}
	if cfg.Collector.CallSiteNames == nil {
		enabled := true
		cfg.Collector.CallSiteNames = &enabled
	}
	if cfg.Sink.Workers == 0 {
		cfg.Sink.Workers = probez.DefaultWorkers
	}
	if cfg.Sink.QueueSize == 0 {
		cfg.Sink.QueueSize = probez.DefaultQueueSize
	}
	if cfg.Sink.BufferSize == 0 {
		cfg.Sink.BufferSize = 1000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = probez.DefaultNamespace
	}
	if cfg.Demo.Contexts == 0 {
		cfg.Demo.Contexts = 1
	}
	if cfg.Demo.Iterations == 0 {
		cfg.Demo.Iterations = 3
	}
	if cfg.Demo.RecursionDepth == 0 {
		cfg.Demo.RecursionDepth = 3
	}
	if cfg.Demo.Pause == 0 {
		cfg.Demo.Pause = 100 * time.Millisecond
	}
}

// applyEnv overrides file values with PROBEZ_* environment variables.
func applyEnv(cfg *Config) error {
	var err error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" && err == nil {
			var n int
			if n, err = strconv.Atoi(v); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" && err == nil {
			var b bool
			if b, err = strconv.ParseBool(v); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = b
		}
	}

	setInt("PROBEZ_MAX_DEPTH", cfg.Collector.MaxDepth)
	setInt("PROBEZ_UNSCOPED_CAPACITY", &cfg.Collector.UnscopedCapacity)
	setBool("PROBEZ_CALL_SITE_NAMES", cfg.Collector.CallSiteNames)
	setInt("PROBEZ_SINK_WORKERS", &cfg.Sink.Workers)
	setInt("PROBEZ_SINK_QUEUE_SIZE", &cfg.Sink.QueueSize)
	setInt("PROBEZ_SINK_BUFFER_SIZE", &cfg.Sink.BufferSize)
	setBool("PROBEZ_LOG_DEVELOPMENT", &cfg.Logging.Development)
	setBool("PROBEZ_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("PROBEZ_DEMO_CONTEXTS", &cfg.Demo.Contexts)
	setInt("PROBEZ_DEMO_ITERATIONS", &cfg.Demo.Iterations)
	setInt("PROBEZ_DEMO_RECURSION_DEPTH", &cfg.Demo.RecursionDepth)

	if v := os.Getenv("PROBEZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROBEZ_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("PROBEZ_DEMO_PAUSE"); v != "" && err == nil {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return fmt.Errorf("PROBEZ_DEMO_PAUSE: %w", perr)
		}
		cfg.Demo.Pause = d
	}
	return err
}
