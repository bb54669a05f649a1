// Package wconfig loads the worker process's runtime configuration,
// mirroring gwconfig's koanf-over-env shape.
package wconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the worker's runtime configuration, per spec.md §6.
type Config struct {
	Addr             string        // HTTP listen address for the worker RPC surface
	RedisURL         string        // in-memory coordination store, for self-registration
	WorkerHost       string        // host:port this worker advertises to the gateway
	BrowserBin       string        // path to the browser executable
	BrowserArgs      []string      // extra flags appended after the required remote-debugging ones
	LaunchTimeout    time.Duration // max wait for /json/version to respond after spawn
	ShutdownGrace    time.Duration // how long CloseBrowser waits for a killed browser process to exit
	PortRangeStart   int
	PortRangeEnd     int
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"addr":                ":9090",
		"redis_url":           "redis://127.0.0.1:6379/0",
		"worker_host":         "localhost:9090",
		"browser_bin":         "chromium",
		"launch_timeout_secs": 10,
		"shutdown_grace_secs": 5,
		"port_range_start":    9300,
		"port_range_end":      9400,
	}
}

// envKeys maps the bare environment variable names a worker recognizes
// onto this config's internal koanf keys. WORKER_HOST is the one name
// spec.md §6 documents directly ("override for a worker's
// self-advertised host"); REDIS_URL is shared with the gateway's key of
// the same name since both processes talk to the same coordination
// store. The rest (ADDR, BROWSER_BIN, BROWSER_ARGS, LAUNCH_TIMEOUT_SECS,
// SHUTDOWN_GRACE_SECS, PORT_RANGE_START, PORT_RANGE_END) are operational
// knobs spec.md doesn't name but a real deployment still needs, kept as
// bare, unprefixed names rather than inventing a namespace. Any
// environment variable not listed here is ignored.
var envKeys = map[string]string{
	"ADDR":                "addr",
	"REDIS_URL":           "redis_url",
	"WORKER_HOST":         "worker_host",
	"BROWSER_BIN":         "browser_bin",
	"BROWSER_ARGS":        "browser_args",
	"LAUNCH_TIMEOUT_SECS": "launch_timeout_secs",
	"SHUTDOWN_GRACE_SECS": "shutdown_grace_secs",
	"PORT_RANGE_START":    "port_range_start",
	"PORT_RANGE_END":      "port_range_end",
}

// Load reads configuration from the environment variable names in
// envKeys above, falling back to defaults() above.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var browserArgs []string
	if raw := k.String("browser_args"); raw != "" {
		browserArgs = strings.Fields(raw)
	}

	c := &Config{
		Addr:           k.String("addr"),
		RedisURL:       k.String("redis_url"),
		WorkerHost:     k.String("worker_host"),
		BrowserBin:     k.String("browser_bin"),
		BrowserArgs:    browserArgs,
		LaunchTimeout:  time.Duration(k.Int64("launch_timeout_secs")) * time.Second,
		ShutdownGrace:  time.Duration(k.Int64("shutdown_grace_secs")) * time.Second,
		PortRangeStart: k.Int("port_range_start"),
		PortRangeEnd:   k.Int("port_range_end"),
	}
	return c, c.Validate()
}

// Validate enforces required fields and sane port-range bounds.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis url is required")
	}
	if c.WorkerHost == "" {
		return fmt.Errorf("worker host is required")
	}
	if c.BrowserBin == "" {
		return fmt.Errorf("browser bin is required")
	}
	if c.PortRangeStart <= 0 || c.PortRangeEnd <= c.PortRangeStart {
		return fmt.Errorf("invalid port range [%d, %d)", c.PortRangeStart, c.PortRangeEnd)
	}
	if c.LaunchTimeout <= 0 {
		return fmt.Errorf("launch timeout must be positive")
	}
	return nil
}
