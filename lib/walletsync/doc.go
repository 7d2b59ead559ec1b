// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package walletsync is the application-facing handle of the wallet
// event bridge.
//
// A [Session] owns every component for one account: the handled-event
// store, the room wallet index, the contact book, the outbound sender,
// and the coordinator that runs one dispatcher per room. Build it with
// [New] from a transport and an engine, then call [Session.Run].
//
// The UI reads state through [Session.ObserveRoomWalletState],
// [Session.ObserveContactRelationship], [Session.ListPendingTransactions]
// and [Session.Notices]. Domain actions go out through [Session.Sender].
//
// With a [sqlitepool.Pool] the session persists handled events, wallet
// snapshots and backfill cursors; the pool must carry [Schemas]. Without
// one everything lives in memory and is rebuilt from room history on the
// next start.
package walletsync
