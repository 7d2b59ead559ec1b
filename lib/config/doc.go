// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the walletsync
// daemon.
//
// Configuration is loaded from a single file specified by either the
// WALLETSYNC_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. The file is YAML, or JSON
// with comments when its name ends in .json or .jsonc.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production logs at warn unless told
// otherwise.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${WALLETSYNC_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// This package depends on no other walletsync packages.
package config
