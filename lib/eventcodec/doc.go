// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventcodec converts between domain payloads and the Matrix
// event envelope (event type plus content map).
//
// The payload set is closed: [Payload] is sealed by an unexported
// method, so the concrete types in this package are the only ones that
// exist. Callers decode once with [Decode] and then switch on the
// concrete type. Unknown event types and unknown message subtypes
// decode to [KindUnrecognized] without error, so a reader keeps working
// when newer clients introduce event kinds it does not know.
//
// Contact lifecycle messages share the m.room.message envelope type
// with plain text messages; the "msgtype" field inside the content
// selects between them.
//
// Encoding is lossless: for every payload p, Decode of the envelope
// produced by Encode(p) yields p again.
package eventcodec
