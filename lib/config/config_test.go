// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// validConfig returns defaults plus the fields the file must supply.
func validConfig() *Config {
	cfg := Default()
	cfg.Homeserver = HomeserverConfig{
		URL:             "https://matrix.example.org",
		UserID:          "@alice:example.org",
		AccessTokenFile: "/run/secrets/token",
	}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Sync.Timeout != 30*time.Second {
		t.Errorf("expected sync.timeout=30s, got %s", cfg.Sync.Timeout)
	}
	if cfg.Sync.RetryBudget != 1 {
		t.Errorf("expected sync.retry_budget=1, got %d", cfg.Sync.RetryBudget)
	}
	if cfg.Outbound.MaxAttempts != 5 {
		t.Errorf("expected outbound.max_attempts=5, got %d", cfg.Outbound.MaxAttempts)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json, got %s", cfg.Log.Format)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when WALLETSYNC_CONFIG not set, got nil")
	}
	expectedMsg := "WALLETSYNC_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	configPath := writeConfig(t, "walletsync.yaml", `
environment: staging
homeserver:
  url: https://matrix.example.org
  user_id: "@alice:example.org"
  access_token_file: /run/secrets/token
`)
	t.Setenv(EnvVar, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, "walletsync.yaml", `
environment: staging

homeserver:
  url: https://matrix.example.org
  user_id: "@alice:example.org"
  access_token_file: ${WALLETSYNC_ROOT}/token

state:
  root: /custom/root
  pool_size: 2
  snapshot_key_file: ${WALLETSYNC_ROOT}/snapshot.key

sync:
  timeout: 45s
  page_size: 25
  retry_budget: 3
  republish_interval: 5m

outbound:
  rate: 2.5
  burst: 10

metrics:
  listen: 127.0.0.1:9464

log:
  level: debug
  format: text
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.State.Root != "/custom/root" {
		t.Errorf("expected root=/custom/root, got %s", cfg.State.Root)
	}
	if cfg.State.Database != "/custom/root/walletsync.db" {
		t.Errorf("expected database under the custom root, got %s", cfg.State.Database)
	}
	if cfg.State.SnapshotKeyFile != "/custom/root/snapshot.key" {
		t.Errorf("expected snapshot key under the custom root, got %s", cfg.State.SnapshotKeyFile)
	}
	if cfg.Homeserver.AccessTokenFile != "/custom/root/token" {
		t.Errorf("expected expanded token path, got %s", cfg.Homeserver.AccessTokenFile)
	}
	if cfg.Sync.Timeout != 45*time.Second || cfg.Sync.RepublishInterval != 5*time.Minute {
		t.Errorf("durations not parsed: timeout=%s republish=%s", cfg.Sync.Timeout, cfg.Sync.RepublishInterval)
	}
	if cfg.Sync.PageSize != 25 || cfg.Sync.RetryBudget != 3 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	// Unset fields keep their defaults.
	if cfg.Sync.BackoffMax != 30*time.Second {
		t.Errorf("expected default backoff_max, got %s", cfg.Sync.BackoffMax)
	}
	if cfg.Outbound.Rate != 2.5 || cfg.Outbound.Burst != 10 || cfg.Outbound.MaxAttempts != 5 {
		t.Errorf("outbound = %+v", cfg.Outbound)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("expected metrics listen address, got %q", cfg.Metrics.Listen)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, %v; want debug", level, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	configPath := writeConfig(t, "walletsync.jsonc", `{
  // Staging account.
  "environment": "staging",
  "homeserver": {
    "url": "https://matrix.example.org",
    "user_id": "@alice:example.org",
    "access_token_file": "/run/secrets/token", // trailing comma below
  },
  "sync": {"timeout": "10s"},
}`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Homeserver.UserID != "@alice:example.org" {
		t.Errorf("expected user_id from JSONC, got %q", cfg.Homeserver.UserID)
	}
	if cfg.Sync.Timeout != 10*time.Second {
		t.Errorf("expected sync.timeout=10s, got %s", cfg.Sync.Timeout)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	malformed := writeConfig(t, "bad.yaml", "homeserver: [unclosed")
	if _, err := LoadFile(malformed); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, "walletsync.yaml", `
environment: production

homeserver:
  url: https://staging.example.org

state:
  root: /default/root

production:
  homeserver:
    url: https://matrix.example.org
  state:
    root: /prod/root
  log:
    level: error
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Homeserver.URL != "https://matrix.example.org" {
		t.Errorf("expected production homeserver, got %s", cfg.Homeserver.URL)
	}
	if cfg.State.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.State.Root)
	}
	if cfg.State.Database != "/prod/root/walletsync.db" {
		t.Errorf("expected database under the production root, got %s", cfg.State.Database)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log.level=error, got %s", cfg.Log.Level)
	}
}

func TestProductionDefaultsWithoutOverrides(t *testing.T) {
	configPath := writeConfig(t, "walletsync.yaml", "environment: production\n")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected production log.level=warn, got %s", cfg.Log.Level)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Environment variables that look like config keys are ignored.
	t.Setenv("WALLETSYNC_ROOT", "/env/root")
	t.Setenv("WALLETSYNC_HOMESERVER", "https://env.example.org")

	configPath := writeConfig(t, "walletsync.yaml", `
environment: development
homeserver:
  url: https://file.example.org
state:
  root: /file/root
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.State.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s (env vars should not override)", cfg.State.Root)
	}
	if cfg.Homeserver.URL != "https://file.example.org" {
		t.Errorf("expected homeserver from file, got %s (env vars should not override)", cfg.Homeserver.URL)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/walletsync",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/walletsync",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "missing homeserver",
			modify:  func(c *Config) { c.Homeserver.URL = "" },
			wantErr: "homeserver.url is required",
		},
		{
			name:    "non-http homeserver",
			modify:  func(c *Config) { c.Homeserver.URL = "ftp://matrix.example.org" },
			wantErr: "homeserver.url must be",
		},
		{
			name:    "bare user id",
			modify:  func(c *Config) { c.Homeserver.UserID = "alice" },
			wantErr: "homeserver.user_id",
		},
		{
			name:    "missing token file",
			modify:  func(c *Config) { c.Homeserver.AccessTokenFile = "" },
			wantErr: "access_token_file",
		},
		{
			name:    "zero retry budget",
			modify:  func(c *Config) { c.Sync.RetryBudget = 0 },
			wantErr: "sync.retry_budget",
		},
		{
			name:    "inverted backoff",
			modify:  func(c *Config) { c.Sync.BackoffMax = time.Millisecond },
			wantErr: "sync.backoff_initial",
		},
		{
			name:    "rate without burst",
			modify:  func(c *Config) { c.Outbound.Rate = 1; c.Outbound.Burst = 0 },
			wantErr: "outbound.burst",
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log.level",
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want one mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Sync.PageSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors for an incomplete config")
	}
	for _, want := range []string{"homeserver.url", "homeserver.user_id", "access_token_file", "sync.page_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := validConfig()
	cfg.State.Root = filepath.Join(tmpDir, "walletsync")
	cfg.State.Database = filepath.Join(cfg.State.Root, "db", "walletsync.db")
	cfg.State.SnapshotKeyFile = filepath.Join(tmpDir, "keys", "snapshot.key")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.State.Root, filepath.Dir(cfg.State.Database), filepath.Dir(cfg.State.SnapshotKeyFile)} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
