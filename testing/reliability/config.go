package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         getEnv("PROBEZ_RELIABILITY_LEVEL", ""),
		Duration:      parseDuration(getEnv("PROBEZ_RELIABILITY_DURATION", "30s")),
		MaxGoroutines: parseInt(getEnv("PROBEZ_RELIABILITY_MAX_GOROUTINES", "100")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil {
		return value
	}
	return 0
}

func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 30 * time.Second
}

// scaled picks the basic or stress variant of a workload size.
func (c ReliabilityConfig) scaled(basic, stress int) int {
	if c.Level == "stress" {
		return stress
	}
	return basic
}

// workers caps a requested goroutine count at MaxGoroutines.
func (c ReliabilityConfig) workers(n int) int {
	if c.MaxGoroutines > 0 && n > c.MaxGoroutines {
		return c.MaxGoroutines
	}
	return n
}
