// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strings"
	"testing"
	"time"
)

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "buffered value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireNoReceive(t *testing.T) {
	ch := make(chan int)
	RequireNoReceive(t, ch, 10*time.Millisecond, "idle channel")
}

func TestRequireClosed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	RequireClosed(t, ch, time.Second)
}

func TestUniqueIdentifiers(t *testing.T) {
	first, second := RoomID("room"), RoomID("room")
	if first == second {
		t.Errorf("RoomID returned %s twice", first)
	}
	if !strings.HasPrefix(first.String(), "!room-") {
		t.Errorf("RoomID = %s, want !room- prefix", first)
	}
	if user := UserID("bob"); user.Server() != "test.local" {
		t.Errorf("UserID server = %q, want test.local", user.Server())
	}
	if event := EventID("e"); event.IsZero() {
		t.Error("EventID returned zero value")
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		args []any
		want string
	}{
		{nil, "(no message)"},
		{[]any{"plain"}, "plain"},
		{[]any{"room %s", "!r:x"}, "room !r:x"},
		{[]any{42}, "42"},
	}
	for _, test := range tests {
		if got := formatMessage(test.args); got != test.want {
			t.Errorf("formatMessage(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}
