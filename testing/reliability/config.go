// Package reliability holds long-running and high-load tests, gated on
// SPANZ_RELIABILITY_LEVEL.
package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
	ChainDepth    int           // Length of cross-goroutine parent chains
}

// getReliabilityConfig reads configuration from environment variables
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         getEnv("SPANZ_RELIABILITY_LEVEL", ""),
		Duration:      parseDuration(getEnv("SPANZ_RELIABILITY_DURATION", "10s")),
		MaxGoroutines: parseInt(getEnv("SPANZ_RELIABILITY_MAX_GOROUTINES", "100"), 100),
		ChainDepth:    parseInt(getEnv("SPANZ_RELIABILITY_CHAIN_DEPTH", "10000"), 10000),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses integer from string with default fallback
func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}

// parseDuration parses duration from string with default fallback
func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 10 * time.Second
}
