// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package walletindex maintains the wallet state derived from each
// collaborative wallet room's timeline.
//
// A room gets a [RoomWalletState] on the first wallet-creation event
// observed in it. Transaction-state events then merge into the room's
// pending transactions, keyed by the event that initiated each
// transaction. A transaction event for a room with no wallet on record
// is rejected with *syncerr.InconsistentStateError; the wallet event
// may simply not have been backfilled yet.
//
// # Signature merging
//
// Signer status merges as a union by fingerprint. A fingerprint once
// reported signed stays signed no matter what later events claim. The
// exception is a rejected status, which resets the snapshot: signers
// are cleared and the transaction stays rejected for good.
//
// Readiness is recomputed on every merge rather than trusted from the
// sender: a transaction is ready to broadcast when its signed count
// reaches the wallet's threshold. The threshold comes from the wallet
// engine; if the engine cannot answer, the threshold parsed from the
// wallet descriptor is used. Broadcast is sticky (only a rejection
// overrides it).
//
// # Persistence
//
// When configured with a [SnapshotStore], every mutation writes the
// room's snapshot, and [Index.Rehydrate] reloads them at startup so a
// session does not need a full backfill to show state. A failed save
// surfaces as a *syncerr.PersistError; a snapshot that cannot be read
// back is skipped, and that room starts empty.
//
// The Index is the sole owner of wallet state. Only the inbound
// dispatcher mutates it; everything else reads copies.
package walletindex
