// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database that holds the bridge's
// durable state: handled-event records, room wallet snapshots, and
// backfill cursors.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Every connection is
// prepared with the same pragmas (WAL journal, NORMAL synchronous, a
// five second busy timeout, in-memory temp store) and then the
// caller's schema script, so a store can assume its tables exist on
// any connection it takes.
//
// Stores share one pool. Each store contributes its own DDL through
// [Config.Schemas]; statements must be idempotent (CREATE TABLE IF NOT
// EXISTS) because they run once per connection.
//
// The durable state is a cache of what the homeserver already holds.
// Losing the file costs a full backfill, never correctness, which is
// why synchronous=NORMAL is enough.
package sqlitepool
