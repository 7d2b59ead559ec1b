// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for walletsync binaries:
// reporting a fatal error to stderr before or after the structured
// logger exists, and choosing the exit status.
//
// Usage errors (bad flags, missing config) exit 2 so supervisors can
// tell them apart from runtime failures, which exit 1.
package process
