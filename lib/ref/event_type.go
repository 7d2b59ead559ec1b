// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type: custom wallet event types
// (io.nunchuk.*) and standard Matrix types (m.room.*). Constants live
// in lib/schema.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }
