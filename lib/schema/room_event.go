// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/bureau-foundation/walletsync/lib/ref"
)

// RoomEvent is one decrypted timeline event. It is immutable once
// constructed: components pass it by value and never mutate Content.
//
// Ordering within a room is the server-assigned timeline order, never
// Timestamp. Timestamp is the origin server time and is used only for
// the reconnect-window comparison.
type RoomEvent struct {
	RoomID  ref.RoomID
	EventID ref.EventID
	Sender  ref.UserID

	// Type is the clear (decrypted) event type.
	Type ref.EventType

	// Content is the clear event content as decoded from JSON.
	Content map[string]any

	// StateKey is non-nil for state events.
	StateKey *string

	Timestamp time.Time
}

// MsgType returns the "msgtype" field of the content, or the empty
// string when absent or not a string.
func (e RoomEvent) MsgType() string {
	msgType, _ := e.Content["msgtype"].(string)
	return msgType
}
