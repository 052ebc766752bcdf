package web

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/candecode/pkg/cert"
)

// writeKeyPair writes a self-signed localhost certificate and key into dir
func writeKeyPair(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	opts := cert.DefaultOptions()
	opts.KeyBits = 1024
	c, err := cert.Generate(opts)
	require.NoError(t, err)

	certFile, keyFile, err = c.Save(dir, false)
	require.NoError(t, err)
	return certFile, keyFile
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"empty addr", func(c *Config) { c.Addr = "" }, true},
		{"cert without key", func(c *Config) { c.CertFile = "server.pem" }, true},
		{"missing cert files", func(c *Config) { c.CertFile, c.KeyFile = "nope.pem", "nope-key.pem" }, true},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }, true},
		{"bad chart format", func(c *Config) { c.Charts.Format = "gif" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadTLSConfigDisabled(t *testing.T) {
	tlsConfig, err := DefaultConfig().LoadTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsConfig)
}

func TestLoadTLSConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CertFile, cfg.KeyFile = writeKeyPair(t, t.TempDir())
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.TLSEnabled())

	tlsConfig, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsConfig)
	assert.Len(t, tlsConfig.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
}

func TestLoadTLSConfigBadPair(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CertFile = filepath.Join(dir, "server.pem")
	cfg.KeyFile = filepath.Join(dir, "server-key.pem")
	require.NoError(t, os.WriteFile(cfg.CertFile, []byte("junk"), 0o600))
	require.NoError(t, os.WriteFile(cfg.KeyFile, []byte("junk"), 0o600))

	_, err := cfg.LoadTLSConfig()
	assert.Error(t, err)

	cfg.LogFile = filepath.Join(dir, "web.log")
	_, err = NewServer(cfg, nil)
	assert.Error(t, err)

	// A failed start leaves no log file behind
	_, statErr := os.Stat(cfg.LogFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewServerLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "web.log")
	srv, _ := newTestServer(t, func(c *Config) { c.LogFile = logPath })

	c := &client{handler: srv.Handler()}
	c.get("/health")
	require.NoError(t, srv.Shutdown(context.Background()))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[web] ")
	assert.Contains(t, string(data), "GET /health 200")
}
