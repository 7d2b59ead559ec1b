// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier types for the Matrix
// objects walletsync works with: rooms, events, users, and event types.
//
// Identifiers are parsed once at the boundary (a /sync response, a
// transport callback, a config file) and travel through the rest of
// the module as value types. RoomID, EventID, and UserID are struct
// wrappers so that a room ID can never be passed where an event ID is
// expected. All three implement encoding.TextMarshaler and
// encoding.TextUnmarshaler, which makes them usable as JSON and CBOR
// map keys and lets decoders validate them automatically.
//
// EventType is a named string: event types need no validation, only
// compile-time separation from other strings.
package ref
