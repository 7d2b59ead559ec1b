// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/walletsync/lib/config"
	"github.com/bureau-foundation/walletsync/lib/process"
)

const minimalConfig = `
homeserver:
  url: https://matrix.example.org
  user_id: "@alice:example.org"
  access_token_file: /run/secrets/token
state:
  root: %ROOT%
log:
  format: text
  level: debug
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "walletsync.yaml")
	content := strings.ReplaceAll(minimalConfig, "%ROOT%", dir)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigPrefersFlag(t *testing.T) {
	t.Setenv(config.EnvVar, "/nonexistent/walletsync.yaml")
	path := writeConfig(t)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Homeserver.UserID != "@alice:example.org" {
		t.Errorf("user_id = %q", cfg.Homeserver.UserID)
	}
	if want := filepath.Join(filepath.Dir(path), "walletsync.db"); cfg.State.Database != want {
		t.Errorf("database = %q, want %q", cfg.State.Database, want)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(config.EnvVar, writeConfig(t))
	if _, err := loadConfig(""); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	t.Setenv(config.EnvVar, "")
	if _, err := loadConfig(""); err == nil {
		t.Error("loadConfig succeeded with neither flag nor environment")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletsync.yaml")
	if err := os.WriteFile(path, []byte("homeserver:\n  url: ftp://nope\n"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	err := run([]string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "homeserver.url") {
		t.Errorf("run = %v, want a homeserver.url error", err)
	}
	if code := process.ExitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	var text bytes.Buffer
	logger, err := newLogger(cfg, &text)
	if err != nil {
		t.Fatalf("newLogger(text): %v", err)
	}
	logger.Debug("hello", "room_id", "!r:example.org")
	if !strings.Contains(text.String(), "room_id=!r:example.org") {
		t.Errorf("text output = %q", text.String())
	}

	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	var structured bytes.Buffer
	logger, err = newLogger(cfg, &structured)
	if err != nil {
		t.Fatalf("newLogger(json): %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "event_id", "$e")
	var record map[string]any
	if err := json.Unmarshal(structured.Bytes(), &record); err != nil {
		t.Fatalf("json output %q: %v", structured.String(), err)
	}
	if record["msg"] != "kept" || record["event_id"] != "$e" {
		t.Errorf("record = %v", record)
	}

	cfg.Log.Format = "xml"
	if _, err := newLogger(cfg, &structured); err == nil {
		t.Error("newLogger accepted an unknown format")
	}
}

func TestNewLimiter(t *testing.T) {
	if limiter := newLimiter(config.OutboundConfig{Rate: 0, Burst: 5}); limiter != nil {
		t.Errorf("zero rate produced limiter %v", limiter)
	}
	limiter := newLimiter(config.OutboundConfig{Rate: 2, Burst: 3})
	if limiter == nil || limiter.Limit() != rate.Limit(2) || limiter.Burst() != 3 {
		t.Errorf("limiter = %+v", limiter)
	}
	if limiter := newLimiter(config.OutboundConfig{Rate: 2.5}); limiter.Burst() != 3 {
		t.Errorf("default burst = %d, want 3", limiter.Burst())
	}
}
