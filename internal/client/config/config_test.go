package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "notesync-data", c.DataDir)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 2*time.Second, c.DebounceDelay)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, time.Second, c.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, c.RetryMaxDelay)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_url":     "http://json:1",
		"data_dir":       "json-dir",
		"debounce_delay": "5s",
	})
	os.Args = []string{"testbin", "-c", path, "-a", "http://flag:2"}

	cfg := LoadConfig()
	assert.Equal(t, "http://flag:2", cfg.ServerURL)
	assert.Equal(t, "json-dir", cfg.DataDir)
	assert.Equal(t, 5*time.Second, cfg.DebounceDelay)
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestRetryPolicy(t *testing.T) {
	c := Config{RetryAttempts: 5, RetryBaseDelay: 10 * time.Millisecond, RetryMaxDelay: time.Second}
	p := c.RetryPolicy()
	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, 10*time.Millisecond, p.Base)
	assert.Equal(t, time.Second, p.Max)
	assert.Equal(t, time.Second, p.Jitter)
}
