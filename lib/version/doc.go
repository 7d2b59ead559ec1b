// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for walletsync binaries.
//
// [Commit], [Dirty] and [BuildTime] may be injected with -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/walletsync/lib/version.Commit=$(git rev-parse --short HEAD)"
//
// When they are not, [Read] falls back to the vcs.* settings the Go
// toolchain stamps into module builds.
package version
