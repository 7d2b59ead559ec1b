// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the chat transport the event bridge runs on
// and provides two implementations.
//
// [Transport] lists rooms, pages a room's history oldest-to-newest
// through a restartable [Pager], sends events, and leaves rooms.
// [LiveSource] pushes new events as [Update] values, and
// [Connectivity] reports when the link to the server drops and
// recovers.
//
// [Matrix] adapts a messaging.Session: /messages with dir=f for
// history, a long-polling /sync loop for live updates. [Memory] keeps
// rooms in process and is what the dispatcher and coordinator tests
// drive.
//
// Pagination positions are opaque [Cursor] strings. [CursorStore]
// persists the last fully applied position per room so a restart
// resumes backfill instead of replaying the whole room.
//
// Transport failures are returned as *syncerr.TransportError.
package transport
