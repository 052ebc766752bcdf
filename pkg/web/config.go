package web

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/mscrnt/candecode/pkg/chart"
)

// Config contains configuration for the web server
type Config struct {
	Addr           string        // Listen address, host:port
	CertFile       string        // Optional server certificate, enables TLS with KeyFile
	KeyFile        string        // Optional server private key
	LogFile        string        // Optional log file path
	MaxUploadBytes int64         // Request body limit for uploads
	ReadTimeout    time.Duration // http.Server read timeout
	WriteTimeout   time.Duration // http.Server write timeout
	Charts         chart.Options // Chart size and format for decoded pages
	Version        string        // Reported by /health
}

// DefaultConfig returns default web configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":5050",
		MaxUploadBytes: 64 << 20,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   120 * time.Second,
		Charts:         chart.DefaultOptions(),
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("certificate and key files must be set together")
	}

	if c.CertFile != "" {
		if _, err := os.Stat(c.CertFile); err != nil {
			return fmt.Errorf("certificate file not found: %s", c.CertFile)
		}
		if _, err := os.Stat(c.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %s", c.KeyFile)
		}
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("upload limit must be positive, got %d", c.MaxUploadBytes)
	}

	return c.Charts.Validate()
}

// TLSEnabled reports whether a certificate pair is configured
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// LoadTLSConfig creates the TLS configuration, or nil when TLS is disabled
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
