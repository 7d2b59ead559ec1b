// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	Number    = "0.1.0-dev"
	Commit    = ""
	Dirty     = ""
	BuildTime = ""
)

// Build describes the running binary.
type Build struct {
	Number    string
	Commit    string
	Dirty     bool
	BuildTime string
	Go        string
	Platform  string
}

// Read combines the injected variables with the toolchain's build
// settings.
func Read() Build {
	build := Build{
		Number:    Number,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildTime: BuildTime,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fromSettings(&build, info.Settings)
	}
	if build.Commit == "" {
		build.Commit = "unknown"
	}
	if build.BuildTime == "" {
		build.BuildTime = "unknown"
	}
	return build
}

func fromSettings(build *Build, settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if build.Commit == "" {
				build.Commit = setting.Value
				if len(build.Commit) > 12 {
					build.Commit = build.Commit[:12]
				}
			}
		case "vcs.time":
			if build.BuildTime == "" {
				build.BuildTime = setting.Value
			}
		case "vcs.modified":
			if Dirty == "" {
				build.Dirty = setting.Value == "true"
			}
		}
	}
}

// String formats the build for --version output.
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s, %s %s)", b.Number, b.Commit, dirty, b.BuildTime, b.Go, b.Platform)
}
