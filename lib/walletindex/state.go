// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletindex

import (
	"maps"
	"time"

	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
)

// RoomWalletState is the derived wallet state of one room. Values
// returned by the Index are copies; mutating them has no effect.
type RoomWalletState struct {
	RoomID     ref.RoomID
	WalletID   string
	WalletName string
	Descriptor string

	// DescriptorThreshold is the threshold parsed from Descriptor, or
	// zero when the descriptor could not be parsed.
	DescriptorThreshold int

	LastAppliedEventID ref.EventID
	LastAppliedAt      time.Time

	// PendingTransactions is keyed by the transaction's init event.
	PendingTransactions map[ref.EventID]TransactionSnapshot
}

// TransactionSnapshot is the merged signing state of one transaction.
type TransactionSnapshot struct {
	TxID        string
	InitEventID ref.EventID
	Signers     map[string]bool
	Status      schema.TransactionStatus
	UpdatedAt   time.Time
}

// SignedCount returns the number of signers marked signed.
func (t TransactionSnapshot) SignedCount() int {
	count := 0
	for _, signed := range t.Signers {
		if signed {
			count++
		}
	}
	return count
}

// Open reports whether the transaction is still awaiting signatures
// or broadcast.
func (t TransactionSnapshot) Open() bool {
	return t.Status == schema.TransactionPending || t.Status == schema.TransactionReadyToBroadcast
}

func (t TransactionSnapshot) clone() TransactionSnapshot {
	t.Signers = maps.Clone(t.Signers)
	if t.Signers == nil {
		t.Signers = map[string]bool{}
	}
	return t
}

func (s RoomWalletState) clone() RoomWalletState {
	transactions := make(map[ref.EventID]TransactionSnapshot, len(s.PendingTransactions))
	for id, snapshot := range s.PendingTransactions {
		transactions[id] = snapshot.clone()
	}
	s.PendingTransactions = transactions
	return s
}
