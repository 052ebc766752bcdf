package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5050", cfg.Server.Addr)
	assert.Equal(t, int64(64<<20), cfg.Server.MaxUploadBytes())
	assert.False(t, cfg.Server.TLSEnabled())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candecode.toml")
	content := `
[server]
addr = "127.0.0.1:8080"
max_upload_mb = 16
read_timeout = "10s"

[store]
path = "/var/lib/candecode/runs.db"
retention = "720h"

[sessions]
ttl = "2h"
prune_schedule = "*/5 * * * *"

[charts]
width = 640
format = "png"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 16, cfg.Server.MaxUploadMB)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "/var/lib/candecode/runs.db", cfg.Store.Path)
	assert.Equal(t, 720*time.Hour, cfg.Store.Retention)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 640, cfg.Charts.Width)
	assert.Equal(t, "png", cfg.Charts.Options().Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CANDECODE_ADDR":         ":9000",
		"CANDECODE_DB_PATH":      "/tmp/x.db",
		"CANDECODE_CHART_WIDTH":  "1000",
		"CANDECODE_SESSION_TTL":  "30m",
		"CANDECODE_CHART_FORMAT": "png",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, 1000, cfg.Charts.Width)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, "png", cfg.Charts.Format)
}

func TestApplyEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CANDECODE_MAX_UPLOAD_MB", "lots"},
		{"CANDECODE_READ_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(func(key string) (string, bool) {
				if key == tt.key {
					return tt.value, true
				}
				return "", false
			})
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CANDECODE_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CANDECODE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("CANDECODE_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost" }},
		{"bad port", func(c *Config) { c.Server.Addr = ":70000" }},
		{"cert without key", func(c *Config) { c.Server.CertFile = "server.pem" }},
		{"zero upload", func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{"negative timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }},
		{"empty store", func(c *Config) { c.Store.Path = "" }},
		{"negative retention", func(c *Config) { c.Store.Retention = -time.Hour }},
		{"zero ttl", func(c *Config) { c.Sessions.TTL = 0 }},
		{"bad cron", func(c *Config) { c.Sessions.PruneSchedule = "whenever" }},
		{"bad chart format", func(c *Config) { c.Charts.Format = "bmp" }},
		{"bad chart size", func(c *Config) { c.Charts.Height = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
