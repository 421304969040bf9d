package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all runtime configuration for the sync client. Values are
// read from the environment; every field has a workable default so the
// client runs against a local dev server with no setup.
type Config struct {
	// ServerURL is the base URL of the event-management server. The
	// push channel is derived from it (ws:// or wss://) at dial time.
	ServerURL string `env:"GUESTSYNC_SERVER_URL, default=http://127.0.0.1:8080"`

	// DataDir is where the local SQLite state lives. Empty means
	// ~/.guestsync.
	DataDir string `env:"GUESTSYNC_DATA_DIR"`

	LogLevel  string `env:"GUESTSYNC_LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"GUESTSYNC_LOG_PRETTY, default=true"`

	// MetricsAddr is the listen address for the Prometheus endpoint of
	// the long-running `run` command. Empty disables it.
	MetricsAddr string `env:"GUESTSYNC_METRICS_ADDR, default=127.0.0.1:9125"`

	// HeartbeatInterval is the cadence of application-level heartbeat
	// messages on the push channel while connected.
	HeartbeatInterval time.Duration `env:"GUESTSYNC_HEARTBEAT_INTERVAL, default=30s"`

	// RequestTimeout bounds individual HTTP API calls.
	RequestTimeout time.Duration `env:"GUESTSYNC_REQUEST_TIMEOUT, default=15s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".guestsync")
	}
	return &cfg, nil
}
