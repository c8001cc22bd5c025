// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration values for the Waymark daemon and the
// quick-action binary. Values are populated by Load from environment
// variables.
type Config struct {
	// ServerURL is the base URL of the authoritative safety server.
	// Required.
	ServerURL string

	// Bearer is the session credential attached to authenticated API
	// calls. Required.
	Bearer string

	// MailboxPath is the SQLite file shared by the daemon and the
	// quick-action binary. Defaults to "data/mailbox.db".
	MailboxPath string

	// WakeAddr is the localhost host:port the daemon's wake endpoint
	// listens on. Defaults to "127.0.0.1:7411".
	WakeAddr string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// ReconcileInterval is the periodic background reconciliation
	// cadence. Defaults to 5m. The host OS guarantees no fixed schedule,
	// so this is a best-effort floor, not a bound.
	ReconcileInterval time.Duration

	// ActionBudget caps a quick-action invocation's wall-clock run time.
	// Defaults to 25s, under the OS's hard ~30s cap so cleanup still
	// happens inside the budget.
	ActionBudget time.Duration
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		MailboxPath:       getEnv("WAYMARK_MAILBOX_PATH", "data/mailbox.db"),
		WakeAddr:          getEnv("WAYMARK_WAKE_ADDR", "127.0.0.1:7411"),
		LogLevel:          getEnv("WAYMARK_LOG_LEVEL", "info"),
		ReconcileInterval: getDuration("WAYMARK_RECONCILE_INTERVAL", 5*time.Minute),
		ActionBudget:      getDuration("WAYMARK_ACTION_BUDGET", 25*time.Second),
	}

	var missing []string

	cfg.ServerURL = strings.TrimRight(os.Getenv("WAYMARK_SERVER_URL"), "/")
	if cfg.ServerURL == "" {
		missing = append(missing, "WAYMARK_SERVER_URL")
	}

	cfg.Bearer = os.Getenv("WAYMARK_BEARER")
	if cfg.Bearer == "" {
		missing = append(missing, "WAYMARK_BEARER")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration parses the environment variable named by key as a Go
// duration, falling back on absence or a parse failure.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
