// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contact

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/watch"
)

// Relationship is the local account's relationship with one peer.
type Relationship struct {
	LocalAccount ref.UserID
	Peer         ref.UserID
	State        State
	UpdatedAt    time.Time
}

type entry struct {
	relationship Relationship

	// acceptedEarly records an acceptance observed while the state was
	// None. The matching request, when it arrives, moves straight to
	// Accepted.
	acceptedEarly bool
}

// Book holds relationships for one local account. Safe for concurrent
// use.
type Book struct {
	local  ref.UserID
	logger *slog.Logger

	mu    sync.Mutex
	peers map[ref.UserID]*entry

	watchers *watch.Hub[ref.UserID, Relationship]
}

// NewBook returns an empty Book for the local account. A nil logger
// discards.
func NewBook(local ref.UserID, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Book{
		local:    local,
		logger:   logger,
		peers:    make(map[ref.UserID]*entry),
		watchers: watch.New[ref.UserID, Relationship](),
	}
}

// LocalAccount returns the account the Book tracks relationships for.
func (b *Book) LocalAccount() ref.UserID { return b.local }

// Apply feeds one contact event for peer into the relationship.
// Returns the resulting relationship and whether its state changed.
func (b *Book) Apply(peer ref.UserID, kind eventcodec.Kind, direction Direction, at time.Time) (Relationship, bool) {
	b.mu.Lock()
	current, ok := b.peers[peer]
	if !ok {
		current = &entry{relationship: Relationship{LocalAccount: b.local, Peer: peer, State: None}}
	}
	previous := current.relationship.State
	next := Transition(previous, kind, direction)

	switch {
	case next == previous && previous == None && isAcceptance(kind):
		current.acceptedEarly = true
	case current.acceptedEarly && (next == RequestSent || next == RequestReceived):
		next = Accepted
		current.acceptedEarly = false
	}

	changed := next != previous
	if changed {
		current.relationship.State = next
		current.relationship.UpdatedAt = at
	}
	if changed || current.acceptedEarly {
		b.peers[peer] = current
	}
	relationship := current.relationship
	b.mu.Unlock()

	if changed {
		b.logger.Info("contact state changed",
			"peer", peer.String(),
			"from", previous.String(),
			"to", next.String(),
			"kind", kind.String(),
			"direction", direction.String(),
		)
		b.watchers.Publish(peer, relationship)
	} else {
		b.logger.Debug("contact event did not change state",
			"peer", peer.String(),
			"state", previous.String(),
			"kind", kind.String(),
			"direction", direction.String(),
		)
	}
	return relationship, changed
}

// Get returns the relationship with peer. Unknown peers are None.
func (b *Book) Get(peer ref.UserID) Relationship {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.peers[peer]; ok {
		return current.relationship
	}
	return Relationship{LocalAccount: b.local, Peer: peer, State: None}
}

// List returns every peer whose state is not None, ordered by peer.
func (b *Book) List() []Relationship {
	b.mu.Lock()
	relationships := make([]Relationship, 0, len(b.peers))
	for _, current := range b.peers {
		if current.relationship.State != None {
			relationships = append(relationships, current.relationship)
		}
	}
	b.mu.Unlock()
	slices.SortFunc(relationships, func(a, b Relationship) int {
		return cmp.Compare(a.Peer.String(), b.Peer.String())
	})
	return relationships
}

// Subscribe streams the relationship with peer, starting with its
// current value. The channel closes when ctx is done.
func (b *Book) Subscribe(ctx context.Context, peer ref.UserID) <-chan Relationship {
	return b.watchers.Subscribe(ctx, peer, func() (Relationship, bool) {
		return b.Get(peer), true
	})
}
