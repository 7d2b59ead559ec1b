// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the binary encoding used for on-disk snapshots.
//
// Room events travel as JSON because that is what the homeserver
// speaks. Everything the bridge persists for itself (room wallet
// snapshots) is CBOR with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. The same snapshot always produces the same bytes, so callers
// can compare blobs to detect change.
//
// [MarshalCompressed] adds a zstd frame around the CBOR bytes for
// blobs stored in SQLite.
//
// Types with a json tag and no cbor tag serialize with the json field
// names; fxamacker/cbor falls back to json tags. Identifier types that
// implement encoding.TextMarshaler (ref.RoomID, ref.EventID) encode as
// CBOR text strings.
package codec
