// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"

	"github.com/bureau-foundation/walletsync/lib/ref"
)

// ErrUnknownWallet is returned by engine lookups for a wallet the
// engine has no record of.
var ErrUnknownWallet = errors.New("engine: unknown wallet")

// ThresholdLookup reports the number of signatures a wallet requires.
type ThresholdLookup interface {
	RequiredSignatures(ctx context.Context, walletID string) (int, error)
}

// DescriptorParser parses a wallet's output descriptor.
type DescriptorParser interface {
	ParseDescriptor(descriptor string) (Descriptor, error)
}

// PendingState is one piece of local state the engine wants published
// to the account's sync room. Payload is the canonical bytes whose
// digest identifies the state.
type PendingState struct {
	WalletID string
	Scope    string
	Payload  []byte
}

// PendingPublisher lists local state awaiting acknowledgment.
type PendingPublisher interface {
	PendingStates(ctx context.Context) ([]PendingState, error)
}

// EventSink is the outbound hook the bridge provides to the engine.
// Content is already encoded. With ignoreErrors set, transport
// failures are swallowed and the zero event ID is returned.
type EventSink interface {
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any, ignoreErrors bool) (ref.EventID, error)
}
