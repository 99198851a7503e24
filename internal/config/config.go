// Package config loads fitsyncd configuration with the teacher's
// precedence chain: built-in defaults, then a YAML file, then
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Read-only after Load
// returns and safe for concurrent reads.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
	Backup   BackupConfig   `yaml:"backup"`
}

// BackupConfig configures the optional S3-compatible snapshot backup of
// the local SQLite file (internal/snapshot). Off by default: an empty
// Bucket disables it entirely.
type BackupConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
	Interval  Duration `yaml:"interval"`
}

// DatabaseConfig contains Embedded Store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig contains Remote Gateway client settings.
type GatewayConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"-"` // env-only, never in YAML
	Timeout Duration `yaml:"timeout"`
}

// SyncConfig contains Sync Engine tuning knobs (spec §6).
type SyncConfig struct {
	DebounceDelay         Duration `yaml:"debounce_delay"`
	OutboxRetryBase       Duration `yaml:"outbox_retry_base"`
	OutboxRetryCap        Duration `yaml:"outbox_retry_cap"`
	OutboxMaxAttempts     int      `yaml:"outbox_max_attempts"`
	InitRetrySchedule     []Duration `yaml:"init_retry_schedule"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML string parsing, e.g. "750ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults -> YAML file -> env.
func Load() (*Config, error) {
	cfg := newDefaults()

	path := getEnv("FITSYNC_CONFIG_PATH", "config/fitsyncd.yaml")
	if err := loadYAMLFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from an explicit path, failing if the
// file does not exist. Used by tests and explicit `--config` invocations.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/fitsync.db",
		},
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:8787",
			Timeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			DebounceDelay:     Duration(750 * time.Millisecond),
			OutboxRetryBase:   Duration(1 * time.Second),
			OutboxRetryCap:    Duration(60 * time.Second),
			OutboxMaxAttempts: 5,
			InitRetrySchedule: []Duration{
				Duration(100 * time.Millisecond),
				Duration(300 * time.Millisecond),
				Duration(900 * time.Millisecond),
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Backup: BackupConfig{
			URLExpiry: Duration(1 * time.Hour),
			Interval:  Duration(1 * time.Hour),
		},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FITSYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FITSYNC_GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("FITSYNC_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("FITSYNC_GATEWAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("FITSYNC_DEBOUNCE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.DebounceDelay = Duration(d)
		}
	}
	if v := os.Getenv("FITSYNC_OUTBOX_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.OutboxMaxAttempts = n
		}
	}
	if v := os.Getenv("FITSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FITSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FITSYNC_BACKUP_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("FITSYNC_BACKUP_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("FITSYNC_BACKUP_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("FITSYNC_BACKUP_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
}

// validate checks required values. Dev mode bypasses the API key check,
// matching the teacher's ENGRAM_DEV_MODE bypass.
func (c *Config) validate() error {
	if os.Getenv("FITSYNC_DEV_MODE") == "true" {
		return nil
	}
	if c.Gateway.APIKey == "" {
		return errors.New("FITSYNC_API_KEY is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
