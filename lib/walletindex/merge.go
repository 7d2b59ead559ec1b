// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletindex

import (
	"time"

	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/schema"
)

// Merge folds one transaction-state update into the existing snapshot
// (zero when the transaction is new) and returns the result. threshold
// is the required signature count; zero or less means unknown, in
// which case readiness is never inferred.
func Merge(existing TransactionSnapshot, update eventcodec.TransactionState, threshold int, at time.Time) TransactionSnapshot {
	merged := existing.clone()
	merged.InitEventID = update.InitEventID
	merged.UpdatedAt = at
	if update.TxID != "" {
		merged.TxID = update.TxID
	}

	if update.Status == schema.TransactionRejected {
		merged.Signers = map[string]bool{}
		merged.Status = schema.TransactionRejected
		return merged
	}
	if existing.Status == schema.TransactionRejected {
		return merged
	}

	for fingerprint, signed := range update.Signers {
		merged.Signers[fingerprint] = merged.Signers[fingerprint] || signed
	}

	switch {
	case existing.Status == schema.TransactionBroadcast || update.Status == schema.TransactionBroadcast:
		merged.Status = schema.TransactionBroadcast
	case threshold > 0 && merged.SignedCount() >= threshold:
		merged.Status = schema.TransactionReadyToBroadcast
	default:
		merged.Status = schema.TransactionPending
	}
	return merged
}
