// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "runtime", err: errors.New("database locked"), want: 1},
		{name: "usage", err: Usage(errors.New("unknown flag")), want: 2},
		{name: "wrapped usage", err: fmt.Errorf("loading config: %w", Usage(errors.New("not set"))), want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	if code := Report(&out, Usage(errors.New("--config is required"))); code != 2 {
		t.Errorf("Report code = %d, want 2", code)
	}
	if got := out.String(); got != "error: --config is required\n" {
		t.Errorf("Report wrote %q", got)
	}

	out.Reset()
	if code := Report(&out, nil); code != 0 || out.Len() != 0 {
		t.Errorf("Report(nil) = %d, wrote %q", code, out.String())
	}
	if Usage(nil) != nil {
		t.Error("Usage(nil) != nil")
	}
}
