// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"

	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
)

// Cursor is an opaque pagination position in one room's timeline. The
// zero value is the start of the room.
type Cursor string

// Page is one batch of history events in timeline order.
type Page struct {
	Events []schema.RoomEvent

	// Next resumes pagination after the last event of this page.
	Next Cursor

	// Done is true when the page reached the end of the history the
	// server had when it was requested.
	Done bool
}

// Pager walks a room's history forward. A Pager is finite and not safe
// for concurrent use; restart from a saved Cursor with Transport.Timeline.
type Pager interface {
	Next(ctx context.Context) (Page, error)
}

// Transport is the request side of the chat transport.
type Transport interface {
	// LocalUser is the account this transport acts as.
	LocalUser() ref.UserID

	// ListRooms returns the rooms the local user has joined.
	ListRooms(ctx context.Context) ([]ref.RoomID, error)

	// RoomName returns the room's display name, or "" when it has none.
	RoomName(ctx context.Context, roomID ref.RoomID) (string, error)

	// RoomTags returns the tags the local user set on the room.
	RoomTags(ctx context.Context, roomID ref.RoomID) ([]string, error)

	// Timeline pages the room's history forward starting after from.
	Timeline(roomID ref.RoomID, from Cursor) Pager

	// SendEvent posts an event and returns its server-assigned ID once
	// the server has accepted it.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any) (ref.EventID, error)

	// LeaveRoom leaves the room. Reason may be empty.
	LeaveRoom(ctx context.Context, roomID ref.RoomID, reason string) error
}

// Update is a batch of live events for one room, in timeline order.
type Update struct {
	RoomID ref.RoomID
	Events []schema.RoomEvent

	// Gap is true when the server skipped events before Events. The
	// receiver must backfill to recover them.
	Gap bool

	// Left is true when the local user is no longer in the room.
	Left bool
}

// LiveSource delivers pushed events. The channel is closed when the
// source stops.
type LiveSource interface {
	Updates() <-chan Update
}

// ConnectivityChange reports a transition of the link to the server.
type ConnectivityChange struct {
	Connected bool
	At        time.Time
}

// Connectivity delivers link transitions. Only changes are delivered,
// never repeats of the current state.
type Connectivity interface {
	Connectivity() <-chan ConnectivityChange
}
