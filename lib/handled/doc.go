// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handled records which room events have already been applied
// to derived state. Its existence check is the dispatcher's dedup gate:
// an event found here is skipped, so redelivery and replay cannot apply
// an event twice.
//
// Records are an append-only set keyed by (room, event). Marking an
// event that is already marked is a no-op, so two racing dispatchers
// marking the same pair is harmless. Records are removed only by
// [Store.Prune] when a room is left.
//
// Two implementations are provided: [MemoryStore] for tests and
// ephemeral sessions, and [SQLiteStore] for durable state across
// restarts.
package handled
