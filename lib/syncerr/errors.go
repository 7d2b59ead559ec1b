// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncerr defines the error taxonomy shared by the event
// bridge. None of these errors is fatal to the process: each one
// degrades to "this room's derived state may be stale".
//
//   - [TransportError]: network or homeserver failure on send or fetch.
//     Mandatory sends are retried by the caller with backoff; best-effort
//     sends swallow it.
//   - [DecodeError]: a recognized event carried a malformed payload. The
//     event is marked handled and never retried.
//   - [InconsistentStateError]: a transaction event referenced a room
//     with no known wallet. The coordinator schedules a bounded
//     re-backfill before logging it permanently.
//   - [PersistError]: derived state was applied in memory but could not
//     be saved. The event is left unhandled so a later pass saves it.
//   - [ErrDuplicateIgnored]: not a failure. Returned by the dispatcher's
//     per-event path when redelivery hits an already-handled event.
//
// Callers inspect these with errors.As and errors.Is:
//
//	var transportErr *syncerr.TransportError
//	if errors.As(err, &transportErr) && transportErr.Retryable {
//	    ...
//	}
package syncerr

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/walletsync/lib/ref"
)

// ErrDuplicateIgnored reports that an event had already been applied.
// It is the expected steady-state outcome of redelivery.
var ErrDuplicateIgnored = errors.New("syncerr: duplicate event ignored")

// TransportError wraps a failure from the chat transport.
type TransportError struct {
	// Op names the transport operation ("send", "timeline", "leave").
	Op string
	// RoomID is the room the operation targeted. Zero for room listing.
	RoomID ref.RoomID
	// Retryable is false when retrying cannot help (forbidden, unknown
	// room). Network errors, timeouts, and rate limits are retryable.
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.RoomID.IsZero() {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s in %s: %v", e.Op, e.RoomID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a malformed payload for a recognized event kind.
type DecodeError struct {
	EventType ref.EventType
	MsgType   string
	EventID   ref.EventID
	Err       error
}

func (e *DecodeError) Error() string {
	if e.MsgType != "" {
		return fmt.Sprintf("decode %s (%s) event %s: %v", e.EventType, e.MsgType, e.EventID, e.Err)
	}
	return fmt.Sprintf("decode %s event %s: %v", e.EventType, e.EventID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InconsistentStateError reports a transaction event whose room has no
// wallet on record. The wallet-creation event may not have been
// backfilled yet.
type InconsistentStateError struct {
	RoomID      ref.RoomID
	InitEventID ref.EventID
	EventID     ref.EventID
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("transaction %s in room %s (event %s) has no wallet on record",
		e.InitEventID, e.RoomID, e.EventID)
}

// PersistError reports that a room's derived state could not be
// written to durable storage.
type PersistError struct {
	RoomID ref.RoomID
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting state of room %s: %v", e.RoomID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersist reports whether err is or wraps a *PersistError.
func IsPersist(err error) bool {
	var persistErr *PersistError
	return errors.As(err, &persistErr)
}

// IsInconsistentState reports whether err is or wraps an
// *InconsistentStateError.
func IsInconsistentState(err error) bool {
	var inconsistent *InconsistentStateError
	return errors.As(err, &inconsistent)
}

// IsRetryable reports whether err is or wraps a TransportError marked
// retryable.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retryable
	}
	return false
}
