package bridge

import (
	"os"
	"strconv"
	"time"
)

// Config holds both ends of the bridge: where the server listens and where clients
// send calls.
type Config struct {
	ListenAddr string
	URL        string
	Timeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8095",
		URL:        "http://localhost:8095",
		Timeout:    30 * time.Second,
	}
}

// LoadConfig reads CALQ_BRIDGE_ADDR, CALQ_BRIDGE_URL and CALQ_BRIDGE_TIMEOUT_MS.
func LoadConfig() Config {
	c := DefaultConfig()
	if v := os.Getenv("CALQ_BRIDGE_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CALQ_BRIDGE_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("CALQ_BRIDGE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return c
}
