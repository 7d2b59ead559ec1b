// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// markerDomainKey separates sync-marker digests from any other BLAKE3
// use of the same bytes. Changing it makes every published marker look
// stale and forces a full republish.
var markerDomainKey = [32]byte{
	'w', 'a', 'l', 'l', 'e', 't', 's', 'y', 'n', 'c', '.', 's', 'y', 'n', 'c', '.',
	'm', 'a', 'r', 'k', 'e', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the hex keyed BLAKE3 digest carried by a sync marker
// for the given local state payload.
func Digest(payload []byte) string {
	hasher, err := blake3.NewKeyed(markerDomainKey[:])
	if err != nil {
		panic("coordinator: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}
