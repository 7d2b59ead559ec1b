// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "WALLETSYNC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the daemon's configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Homeserver identifies the Matrix account the bridge acts as.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// State configures where derived state is persisted.
	State StateConfig `yaml:"state"`

	// Sync tunes backfill, live sync, and republishing.
	Sync SyncConfig `yaml:"sync"`

	// Outbound tunes event sending.
	Outbound OutboundConfig `yaml:"outbound"`

	// Metrics configures the prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Homeserver *HomeserverConfig `yaml:"homeserver,omitempty"`
	State      *StateConfig      `yaml:"state,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// HomeserverConfig identifies the account.
type HomeserverConfig struct {
	// URL is the homeserver's client-server API base URL.
	URL string `yaml:"url"`

	// UserID is the full Matrix user ID (@user:server).
	UserID string `yaml:"user_id"`

	// AccessTokenFile holds the account's access token on one line.
	// "-" reads it from stdin.
	AccessTokenFile string `yaml:"access_token_file"`
}

// StateConfig configures persistence.
type StateConfig struct {
	// Root is the base directory for state files.
	Root string `yaml:"root"`

	// Database is the sqlite file holding handled events, wallet
	// snapshots, and backfill cursors.
	// Default: ${WALLETSYNC_ROOT}/walletsync.db
	Database string `yaml:"database"`

	// PoolSize is the number of sqlite connections. Default: 4
	PoolSize int `yaml:"pool_size"`

	// SnapshotKeyFile, when set, holds an age identity used to encrypt
	// wallet snapshots at rest. Created on first use.
	SnapshotKeyFile string `yaml:"snapshot_key_file"`
}

// SyncConfig tunes the inbound side.
type SyncConfig struct {
	// Timeout is the long-poll timeout of each /sync request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// PageSize is the number of events per history request.
	// Default: 100
	PageSize int `yaml:"page_size"`

	// RetryBudget is the number of full re-backfills a transaction
	// event that arrived before its wallet gets. Default: 1
	RetryBudget int `yaml:"retry_budget"`

	// RepublishInterval is how often local pending state is checked
	// against the sync room. Default: 1m
	RepublishInterval time.Duration `yaml:"republish_interval"`

	// BackoffInitial and BackoffMax bound retry delays after transport
	// failures. Defaults: 1s and 30s.
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// OutboundConfig tunes sends.
type OutboundConfig struct {
	// Rate is the sustained send rate in events per second. Zero
	// sends unpaced.
	Rate float64 `yaml:"rate"`

	// Burst is the number of sends allowed above Rate. Default: 5
	Burst int `yaml:"burst"`

	// MaxAttempts bounds mandatory sends, including the first try.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Listen is the address /metrics is served on. Empty disables it.
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// Format is json or text. Default: json
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "state", "walletsync")

	return &Config{
		Environment: Development,
		State: StateConfig{
			Root:     defaultRoot,
			Database: filepath.Join("${WALLETSYNC_ROOT}", "walletsync.db"),
			PoolSize: 4,
		},
		Sync: SyncConfig{
			Timeout:           30 * time.Second,
			PageSize:          100,
			RetryBudget:       1,
			RepublishInterval: time.Minute,
			BackoffInitial:    time.Second,
			BackoffMax:        30 * time.Second,
		},
		Outbound: OutboundConfig{
			Burst:       5,
			MaxAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the WALLETSYNC_CONFIG environment
// variable.
//
// There are no fallbacks or defaults - if WALLETSYNC_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your walletsync.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are read as JSON with comments; anything else is
// YAML.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${VAR} in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document decodes
		// through the same struct tags.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Level: "warn"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Homeserver != nil {
		if overrides.Homeserver.URL != "" {
			c.Homeserver.URL = overrides.Homeserver.URL
		}
		if overrides.Homeserver.UserID != "" {
			c.Homeserver.UserID = overrides.Homeserver.UserID
		}
		if overrides.Homeserver.AccessTokenFile != "" {
			c.Homeserver.AccessTokenFile = overrides.Homeserver.AccessTokenFile
		}
	}

	if overrides.State != nil {
		if overrides.State.Root != "" {
			c.State.Root = overrides.State.Root
		}
		if overrides.State.Database != "" {
			c.State.Database = overrides.State.Database
		}
		if overrides.State.PoolSize != 0 {
			c.State.PoolSize = overrides.State.PoolSize
		}
		if overrides.State.SnapshotKeyFile != "" {
			c.State.SnapshotKeyFile = overrides.State.SnapshotKeyFile
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"WALLETSYNC_ROOT": c.State.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.State.Root = expandVars(c.State.Root, vars)
	vars["WALLETSYNC_ROOT"] = c.State.Root // Update for dependent paths.

	c.State.Database = expandVars(c.State.Database, vars)
	c.State.SnapshotKeyFile = expandVars(c.State.SnapshotKeyFile, vars)
	c.Homeserver.AccessTokenFile = expandVars(c.Homeserver.AccessTokenFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver.url must be an http or https URL: %q", c.Homeserver.URL))
	}
	if !strings.HasPrefix(c.Homeserver.UserID, "@") || !strings.Contains(c.Homeserver.UserID, ":") {
		errs = append(errs, fmt.Errorf("homeserver.user_id must look like @user:server: %q", c.Homeserver.UserID))
	}
	if c.Homeserver.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("homeserver.access_token_file is required"))
	}

	if c.State.Database == "" {
		errs = append(errs, fmt.Errorf("state.database is required"))
	}
	if c.State.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("state.pool_size must be at least 1"))
	}

	if c.Sync.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must be positive"))
	}
	if c.Sync.PageSize < 1 {
		errs = append(errs, fmt.Errorf("sync.page_size must be at least 1"))
	}
	if c.Sync.RetryBudget < 1 {
		errs = append(errs, fmt.Errorf("sync.retry_budget must be at least 1"))
	}
	if c.Sync.RepublishInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.republish_interval must be positive"))
	}
	if c.Sync.BackoffInitial <= 0 || c.Sync.BackoffMax < c.Sync.BackoffInitial {
		errs = append(errs, fmt.Errorf("sync.backoff_initial must be positive and no greater than sync.backoff_max"))
	}

	if c.Outbound.Rate < 0 {
		errs = append(errs, fmt.Errorf("outbound.rate must not be negative"))
	}
	if c.Outbound.Rate > 0 && c.Outbound.Burst < 1 {
		errs = append(errs, fmt.Errorf("outbound.burst must be at least 1 when outbound.rate is set"))
	}
	if c.Outbound.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("outbound.max_attempts must be at least 1"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be one of: [json text]"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates the directories state files live in.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.State.Root,
		filepath.Dir(c.State.Database),
	}
	if c.State.SnapshotKeyFile != "" {
		paths = append(paths, filepath.Dir(c.State.SnapshotKeyFile))
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
