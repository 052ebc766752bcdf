// Package config loads candecode settings from a TOML file, a .env file and
// CANDECODE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/mscrnt/candecode/pkg/chart"
	"github.com/mscrnt/candecode/pkg/schedule"
)

// DefaultFile is read when no --config flag is given and the file exists
const DefaultFile = "candecode.toml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "CANDECODE_"

// Config holds all settings
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Sessions SessionsConfig `toml:"sessions"`
	Charts   ChartsConfig   `toml:"charts"`
}

// ServerConfig configures the web UI
type ServerConfig struct {
	Addr         string        `toml:"addr"`
	CertFile     string        `toml:"cert_file"`
	KeyFile      string        `toml:"key_file"`
	LogFile      string        `toml:"log_file"`
	MaxUploadMB  int           `toml:"max_upload_mb"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// StoreConfig configures the SQLite store
type StoreConfig struct {
	Path      string        `toml:"path"`
	Retention time.Duration `toml:"retention"` // 0 keeps runs forever
}

// SessionsConfig configures browser session lifetime
type SessionsConfig struct {
	TTL           time.Duration `toml:"ttl"`
	PruneSchedule string        `toml:"prune_schedule"`
}

// ChartsConfig configures rendered charts
type ChartsConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Format string `toml:"format"`
}

// Default returns the built-in settings
func Default() Config {
	defaults := chart.DefaultOptions()
	return Config{
		Server: ServerConfig{
			Addr:         ":5050",
			MaxUploadMB:  64,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Store: StoreConfig{
			Path: defaultDBPath(),
		},
		Sessions: SessionsConfig{
			TTL:           24 * time.Hour,
			PruneSchedule: "@every 15m",
		},
		Charts: ChartsConfig{
			Width:  defaults.Width,
			Height: defaults.Height,
			Format: defaults.Format,
		},
	}
}

// defaultDBPath returns ~/.candecode/candecode.db, or a file in the working directory
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "candecode.db"
	}
	return filepath.Join(homeDir, ".candecode", "candecode.db")
}

// Load builds the configuration: defaults, then the TOML file, then .env and
// the environment. An empty path reads DefaultFile only if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		if _, err := toml.DecodeFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from CANDECODE_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":           &c.Server.Addr,
		"CERT_FILE":      &c.Server.CertFile,
		"KEY_FILE":       &c.Server.KeyFile,
		"LOG_FILE":       &c.Server.LogFile,
		"DB_PATH":        &c.Store.Path,
		"PRUNE_SCHEDULE": &c.Sessions.PruneSchedule,
		"CHART_FORMAT":   &c.Charts.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_UPLOAD_MB": &c.Server.MaxUploadMB,
		"CHART_WIDTH":   &c.Charts.Width,
		"CHART_HEIGHT":  &c.Charts.Height,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"READ_TIMEOUT":  &c.Server.ReadTimeout,
		"WRITE_TIMEOUT": &c.Server.WriteTimeout,
		"RETENTION":     &c.Store.Retention,
		"SESSION_TTL":   &c.Sessions.TTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	_, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Server.Addr, err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port: %s", port)
	}

	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if c.Store.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Sessions.TTL)
	}

	if err := schedule.ValidateSpec(c.Sessions.PruneSchedule); err != nil {
		return err
	}

	return c.Charts.Options().Validate()
}

// Options converts chart settings for the chart package
func (c ChartsConfig) Options() chart.Options {
	return chart.Options{Width: c.Width, Height: c.Height, Format: c.Format}
}

// MaxUploadBytes returns the upload limit in bytes
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// TLSEnabled reports whether the server should listen with TLS
func (c ServerConfig) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
