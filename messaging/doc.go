// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API the
// wallet event bridge needs.
//
// [Client] holds the homeserver URL and HTTP transport. It does not log
// in: the access token is issued by the account service and handed to
// [Client.SessionFromToken], which returns a [DirectSession].
//
// [Session] covers what the bridge does with a room: list joined rooms,
// page the timeline forward with /messages, long-poll /sync, send
// events with idempotent PUT transactions, read state events and room
// tags, and leave. The transport adapter in lib/transport is the only
// production consumer; tests substitute an httptest homeserver.
//
// All API errors are returned as [*MatrixError] carrying the Matrix
// error code (M_FORBIDDEN, M_LIMIT_EXCEEDED, ...) and the HTTP status.
// [IsMatrixError] tests for a specific code. Request URLs are built by
// string concatenation with url.PathEscape on each segment, which keeps
// room IDs containing reserved characters intact.
package messaging
