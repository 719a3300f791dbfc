package native

import (
	"os"
	"strconv"
	"time"
)

// Config holds the native client's delivery settings. The PostHog project key is not
// part of it: it arrives as the write key passed to Init.
type Config struct {
	// PostHogHost is the capture endpoint.
	PostHogHost string

	// BatchSize is how many queued messages trigger a send.
	BatchSize int

	// FlushInterval is the longest a queued message waits before being sent.
	FlushInterval time.Duration

	// Verbose turns on posthog-go's own request logging.
	Verbose bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		PostHogHost:   "https://app.posthog.com",
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		Verbose:       false,
	}
}

// LoadConfig reads CALQ_POSTHOG_HOST, CALQ_BATCH_SIZE, CALQ_FLUSH_INTERVAL_MS and
// CALQ_VERBOSE over the defaults.
func LoadConfig() *Config {
	defaults := DefaultConfig()
	return &Config{
		PostHogHost:   getEnv("CALQ_POSTHOG_HOST", defaults.PostHogHost),
		BatchSize:     getEnvInt("CALQ_BATCH_SIZE", defaults.BatchSize),
		FlushInterval: time.Duration(getEnvInt("CALQ_FLUSH_INTERVAL_MS", int(defaults.FlushInterval/time.Millisecond))) * time.Millisecond,
		Verbose:       getEnvBool("CALQ_VERBOSE", defaults.Verbose),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
