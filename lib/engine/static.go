// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Static is an in-process engine. Thresholds and pending state are set
// explicitly; descriptor parsing uses ParseDescriptor.
type Static struct {
	mu         sync.Mutex
	thresholds map[string]int
	pending    map[string]PendingState
}

// NewStatic returns an empty Static engine.
func NewStatic() *Static {
	return &Static{
		thresholds: make(map[string]int),
		pending:    make(map[string]PendingState),
	}
}

// SetThreshold records the required signature count for a wallet.
func (s *Static) SetThreshold(walletID string, required int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[walletID] = required
}

// SetPending queues local state for publication. A later call for the
// same wallet and scope replaces the earlier state.
func (s *Static) SetPending(state PendingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[state.Scope+"\x00"+state.WalletID] = state
}

// ClearPending drops queued state for a wallet and scope.
func (s *Static) ClearPending(walletID, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, scope+"\x00"+walletID)
}

func (s *Static) RequiredSignatures(_ context.Context, walletID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	required, ok := s.thresholds[walletID]
	if !ok {
		return 0, ErrUnknownWallet
	}
	return required, nil
}

func (s *Static) ParseDescriptor(descriptor string) (Descriptor, error) {
	return ParseDescriptor(descriptor)
}

// PendingStates returns queued state ordered by scope then wallet.
func (s *Static) PendingStates(context.Context) ([]PendingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]PendingState, 0, len(s.pending))
	for _, state := range s.pending {
		states = append(states, state)
	}
	slices.SortFunc(states, func(a, b PendingState) int {
		if c := strings.Compare(a.Scope, b.Scope); c != 0 {
			return c
		}
		return strings.Compare(a.WalletID, b.WalletID)
	})
	return states, nil
}
