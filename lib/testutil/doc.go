// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern so individual tests never call time.After
// directly. These are the only real wall-clock waits in the test
// suite; everything else drives time through clock.Fake.
//
// [RoomID], [EventID], and [UserID] mint unique, valid Matrix
// identifiers so tests sharing a store or transport do not collide.
//
// All helpers call t.Fatalf on failure.
package testutil
