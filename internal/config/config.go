// Package config loads application configuration for the mail account
// configuration client: the on-disk paths, logging settings, and probe
// tunables the pipeline and its CLI shell need.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the mailclient binary.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
	Autoconfig AutoconfigConfig `koanf:"autoconfig"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
}

// StorageConfig holds on-disk paths for the config store and its blob
// directory.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"` // base data directory
	StoreDB string `koanf:"store_db"` // SQLite config-store path
	BlobDir string `koanf:"blob_dir"` // directory housekeeping scans
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
	Output string `koanf:"output"` // stdout, stderr, or file path
}

// AutoconfigConfig holds the optional Redis-backed autoconfig response
// cache's settings. An empty RedisURL disables the cache entirely.
type AutoconfigConfig struct {
	RedisURL string `koanf:"redis_url"`
	Prefix   string `koanf:"prefix"`
}

// PipelineConfig holds tunables for the configuration pipeline's timeouts.
// Whether the moved-messages folder is created is not an app-config
// concern: the pipeline reads the mvbox_watch/mvbox_move keys from the
// account's config store.
type PipelineConfig struct {
	ProbeTimeout   string `koanf:"probe_timeout"`   // HTTP autoconfig/autodiscover request timeout
	ConnectTimeout string `koanf:"connect_timeout"` // IMAP/SMTP dial timeout
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "/var/lib/mailclient",
			StoreDB: "/var/lib/mailclient/account.db",
			BlobDir: "/var/lib/mailclient/blobs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Autoconfig: AutoconfigConfig{
			RedisURL: "",
			Prefix:   "autoconfig",
		},
		Pipeline: PipelineConfig{
			ProbeTimeout:   "15s",
			ConnectTimeout: "30s",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// any field the file does not set and returning pure defaults if path does
// not exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error (got: %s)", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[c.Logging.Format] {
			return fmt.Errorf("logging.format must be one of: json, text (got: %s)", c.Logging.Format)
		}
	}

	return nil
}

// validateStorage ensures all storage paths are valid.
func (c *Config) validateStorage() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.StoreDB == "" {
		return fmt.Errorf("storage.store_db is required")
	}
	if c.Storage.BlobDir == "" {
		return fmt.Errorf("storage.blob_dir is required")
	}

	if !filepath.IsAbs(c.Storage.DataDir) {
		return fmt.Errorf("storage.data_dir must be an absolute path (got: %s)", c.Storage.DataDir)
	}
	if !filepath.IsAbs(c.Storage.StoreDB) {
		return fmt.Errorf("storage.store_db must be an absolute path (got: %s)", c.Storage.StoreDB)
	}
	if !filepath.IsAbs(c.Storage.BlobDir) {
		return fmt.Errorf("storage.blob_dir must be an absolute path (got: %s)", c.Storage.BlobDir)
	}

	return nil
}

// validateTimeouts ensures all timeout configurations parse and fall within
// sane bounds.
func (c *Config) validateTimeouts() error {
	timeouts := map[string]string{
		"pipeline.probe_timeout":   c.Pipeline.ProbeTimeout,
		"pipeline.connect_timeout": c.Pipeline.ConnectTimeout,
	}

	for name, timeout := range timeouts {
		if timeout == "" {
			continue
		}
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
		if duration <= 0 {
			return fmt.Errorf("%s must be positive (got: %s)", name, timeout)
		}
		if duration > 5*time.Minute {
			return fmt.Errorf("%s is too long, maximum is 5m (got: %s)", name, timeout)
		}
	}

	return nil
}

// EnsureDirectories creates the data and blob directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.BlobDir,
		filepath.Dir(c.Storage.StoreDB),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ProbeTimeoutDuration parses Pipeline.ProbeTimeout, falling back to 15s.
func (c *Config) ProbeTimeoutDuration() time.Duration {
	return parseDurationOr(c.Pipeline.ProbeTimeout, 15*time.Second)
}

// ConnectTimeoutDuration parses Pipeline.ConnectTimeout, falling back to 30s.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(c.Pipeline.ConnectTimeout, 30*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
