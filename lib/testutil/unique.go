// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/bureau-foundation/walletsync/lib/ref"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N monotonically increasing.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// RoomID returns a fresh room ID on the test server.
func RoomID(prefix string) ref.RoomID {
	return ref.MustParseRoomID("!" + UniqueID(prefix) + ":test.local")
}

// EventID returns a fresh event ID.
func EventID(prefix string) ref.EventID {
	return ref.MustParseEventID("$" + UniqueID(prefix))
}

// UserID returns a fresh user ID on the test server.
func UserID(prefix string) ref.UserID {
	return ref.MustParseUserID("@" + UniqueID(prefix) + ":test.local")
}
