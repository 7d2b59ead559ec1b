// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handled

import (
	"context"
	"sync"

	"github.com/bureau-foundation/walletsync/lib/ref"
)

// Store is the handled-event set. Implementations are safe for
// concurrent use from multiple per-room dispatchers.
type Store interface {
	// Has reports whether the event has been marked in the room.
	Has(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (bool, error)

	// MarkHandled records the event. Marking twice is harmless.
	MarkHandled(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error

	// Prune removes every record for the room.
	Prune(ctx context.Context, roomID ref.RoomID) error

	// Count returns the number of records for the room.
	Count(ctx context.Context, roomID ref.RoomID) (int, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[ref.RoomID]map[ref.EventID]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[ref.RoomID]map[ref.EventID]struct{})}
}

func (s *MemoryStore) Has(_ context.Context, roomID ref.RoomID, eventID ref.EventID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID][eventID]
	return ok, nil
}

func (s *MemoryStore) MarkHandled(_ context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.rooms[roomID]
	if !ok {
		events = make(map[ref.EventID]struct{})
		s.rooms[roomID] = events
	}
	events[eventID] = struct{}{}
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, roomID ref.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, roomID ref.RoomID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID]), nil
}
