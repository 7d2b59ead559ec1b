// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix event types and content structures
// that make up the wallet synchronization protocol. Event type
// constants (EventType*) are Matrix event type strings; MsgType*
// constants are the "msgtype" subtypes carried inside content; Go
// structs define the JSON content.
//
// Wallet protocol events use custom event types:
//
//   - [EventTypeWallet] -- collaborative wallet creation
//   - [EventTypeTransaction] -- transaction signing state
//   - [EventTypeSync] -- sync markers acknowledging published state
//   - [EventTypeError] -- error reports from other participants
//
// Contact lifecycle events reuse m.room.message and are distinguished
// only by their msgtype ([MsgTypeContactRequest] and friends).
//
// [RoomEvent] is the transport-neutral shape of one timeline event as
// the rest of the module sees it.
//
// This package depends only on lib/ref.
package schema
