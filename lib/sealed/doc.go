// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts wallet snapshots at rest with age. A [Key]
// holds one x25519 identity loaded from, or generated into, a key file
// under the state root. [Key.Seal] and [Key.Open] work on raw binary
// ciphertext so sealed blobs can sit directly in sqlite BLOB columns.
//
// The key file holds a single AGE-SECRET-KEY-1... line and is written
// with mode 0600. Losing it makes every sealed snapshot unreadable;
// the bridge then rebuilds state from room history.
package sealed
