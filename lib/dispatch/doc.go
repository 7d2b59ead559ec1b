// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch applies one room's events to derived state.
//
// A [Room] runs as a single goroutine. It starts Backfilling, paging
// the room's history forward from the saved cursor, then goes Live and
// applies pushed updates from an unbounded mailbox in arrival order.
// Events are applied at most once: each one is checked against the
// handled store, decoded, routed to the wallet index or the contact
// book, and then marked handled.
//
// Failures while applying an event are logged and counted and the
// event is still marked, so one bad event never blocks a room. The
// exception is a transaction event for a room with no wallet on record:
// that event stays unmarked and is reported through [Hooks.Deferred] so
// the coordinator can schedule a full re-backfill. An event whose state
// change could not be saved also stays unmarked, and a backfill holds
// its cursor at the first such event.
package dispatch
