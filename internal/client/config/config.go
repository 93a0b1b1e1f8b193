package config

import (
	"time"

	"github.com/dmitrijs2005/notesync/internal/retryx"
)

// Config holds runtime settings for the notesync client.
type Config struct {
	// ServerURL is the base URL of the sync server, without a trailing slash.
	ServerURL string
	// DataDir holds the local database.
	DataDir             string
	OnlineCheckInterval time.Duration
	// DebounceDelay is the quiet period after an edit before a sync starts.
	DebounceDelay time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// LogFile enables a rotating log file instead of stderr.
	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	p := retryx.DefaultPolicy()
	c.ServerURL = "http://127.0.0.1:8080"
	c.DataDir = "notesync-data"
	c.OnlineCheckInterval = 3 * time.Second
	c.DebounceDelay = 2 * time.Second
	c.RetryAttempts = p.Attempts
	c.RetryBaseDelay = p.Base
	c.RetryMaxDelay = p.Max
	c.LogFile = ""
	c.LogLevel = "info"
}

// RetryPolicy is the HTTP retry policy described by c.
func (c *Config) RetryPolicy() retryx.Policy {
	p := retryx.DefaultPolicy()
	p.Attempts = c.RetryAttempts
	p.Base = c.RetryBaseDelay
	p.Max = c.RetryMaxDelay
	return p
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
