// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletindex

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/walletsync/lib/engine"
	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/watch"
)

// Config configures an Index. Every field is optional.
type Config struct {
	// Thresholds answers required-signature lookups. When nil or when
	// it fails, the descriptor threshold is used.
	Thresholds engine.ThresholdLookup

	// Parser parses wallet descriptors. Defaults to
	// engine.ReferenceParser.
	Parser engine.DescriptorParser

	// Store persists snapshots. Nil disables persistence.
	Store SnapshotStore

	Logger *slog.Logger
}

// Wallet is the content of a wallet-creation event.
type Wallet struct {
	ID         string
	Name       string
	Descriptor string
}

// Index owns every room's wallet state. Safe for concurrent use.
type Index struct {
	thresholds engine.ThresholdLookup
	parser     engine.DescriptorParser
	store      SnapshotStore
	logger     *slog.Logger

	mu    sync.RWMutex
	rooms map[ref.RoomID]*RoomWalletState

	watchers *watch.Hub[ref.RoomID, RoomWalletState]
}

// New returns an empty Index.
func New(cfg Config) *Index {
	parser := cfg.Parser
	if parser == nil {
		parser = engine.ReferenceParser
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{
		thresholds: cfg.Thresholds,
		parser:     parser,
		store:      cfg.Store,
		logger:     logger,
		rooms:      make(map[ref.RoomID]*RoomWalletState),
		watchers:   watch.New[ref.RoomID, RoomWalletState](),
	}
}

// OnWalletCreated creates the room's wallet state. Only the first
// wallet event observed in a room creates state; later ones advance
// the room's last-applied marker and are otherwise ignored.
func (x *Index) OnWalletCreated(ctx context.Context, roomID ref.RoomID, wallet Wallet, eventID ref.EventID, at time.Time) error {
	x.mu.Lock()
	state, exists := x.rooms[roomID]
	if exists {
		if state.WalletID != wallet.ID {
			x.logger.Warn("ignoring second wallet in room",
				"room_id", roomID,
				"wallet_id", state.WalletID,
				"ignored_wallet_id", wallet.ID,
				"event_id", eventID,
			)
		}
	} else {
		state = &RoomWalletState{
			RoomID:              roomID,
			WalletID:            wallet.ID,
			WalletName:          wallet.Name,
			Descriptor:          wallet.Descriptor,
			DescriptorThreshold: x.descriptorThreshold(roomID, wallet),
			PendingTransactions: make(map[ref.EventID]TransactionSnapshot),
		}
		x.rooms[roomID] = state
	}
	advance(state, eventID, at)
	snapshot := state.clone()
	x.mu.Unlock()

	x.watchers.Publish(roomID, snapshot)

	return x.persist(ctx, snapshot)
}

// OnTransactionState merges a transaction-state update into the room's
// wallet state. Returns *syncerr.InconsistentStateError when the room
// has no wallet on record.
func (x *Index) OnTransactionState(ctx context.Context, roomID ref.RoomID, update eventcodec.TransactionState, eventID ref.EventID, at time.Time) error {
	x.mu.RLock()
	state, exists := x.rooms[roomID]
	var walletID string
	var fallback int
	if exists {
		walletID, fallback = state.WalletID, state.DescriptorThreshold
	}
	x.mu.RUnlock()

	if !exists {
		return &syncerr.InconsistentStateError{RoomID: roomID, InitEventID: update.InitEventID, EventID: eventID}
	}
	if update.WalletID != "" && update.WalletID != walletID {
		return fmt.Errorf("walletindex: transaction %s names wallet %q, room %s holds %q",
			update.InitEventID, update.WalletID, roomID, walletID)
	}

	// The engine lookup may block; it runs outside the lock. Only the
	// room's own dispatcher mutates the room, so state cannot change
	// underneath except by Remove.
	threshold := x.threshold(ctx, walletID, fallback)

	x.mu.Lock()
	state, exists = x.rooms[roomID]
	if !exists {
		x.mu.Unlock()
		return &syncerr.InconsistentStateError{RoomID: roomID, InitEventID: update.InitEventID, EventID: eventID}
	}
	state.PendingTransactions[update.InitEventID] = Merge(state.PendingTransactions[update.InitEventID], update, threshold, at)
	advance(state, eventID, at)
	snapshot := state.clone()
	x.mu.Unlock()

	x.watchers.Publish(roomID, snapshot)

	return x.persist(ctx, snapshot)
}

// Get returns a copy of the room's wallet state.
func (x *Index) Get(roomID ref.RoomID) (RoomWalletState, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	state, ok := x.rooms[roomID]
	if !ok {
		return RoomWalletState{}, false
	}
	return state.clone(), true
}

// ListAll returns every room's state, most recently active first.
func (x *Index) ListAll() []RoomWalletState {
	x.mu.RLock()
	states := make([]RoomWalletState, 0, len(x.rooms))
	for _, state := range x.rooms {
		states = append(states, state.clone())
	}
	x.mu.RUnlock()

	slices.SortFunc(states, func(a, b RoomWalletState) int {
		if c := b.LastAppliedAt.Compare(a.LastAppliedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RoomID.String(), b.RoomID.String())
	})
	return states
}

// PendingTransactions returns the room's open transactions (pending or
// ready to broadcast), oldest update first. Nil when the room has no
// wallet.
func (x *Index) PendingTransactions(roomID ref.RoomID) []TransactionSnapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()
	state, ok := x.rooms[roomID]
	if !ok {
		return nil
	}
	var open []TransactionSnapshot
	for _, snapshot := range state.PendingTransactions {
		if snapshot.Open() {
			open = append(open, snapshot.clone())
		}
	}
	slices.SortFunc(open, func(a, b TransactionSnapshot) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.InitEventID.String(), b.InitEventID.String())
	})
	return open
}

// Remove deletes the room's state. Only room leave calls it.
func (x *Index) Remove(ctx context.Context, roomID ref.RoomID) error {
	x.mu.Lock()
	delete(x.rooms, roomID)
	x.mu.Unlock()
	if x.store == nil {
		return nil
	}
	if err := x.store.Delete(ctx, roomID); err != nil {
		return fmt.Errorf("walletindex: removing %s: %w", roomID, err)
	}
	return nil
}

// Subscribe streams the room's state: the current state first (if the
// room has a wallet), then every change. The channel closes when ctx
// is done. Slow readers see only the latest state.
func (x *Index) Subscribe(ctx context.Context, roomID ref.RoomID) <-chan RoomWalletState {
	return x.watchers.Subscribe(ctx, roomID, func() (RoomWalletState, bool) {
		return x.Get(roomID)
	})
}

// Rehydrate loads persisted snapshots. A room already present in memory
// keeps its state when that state is at least as recent. Snapshots that
// cannot be read are logged and skipped; those rooms have no state
// until their history is replayed.
func (x *Index) Rehydrate(ctx context.Context) (int, error) {
	if x.store == nil {
		return 0, nil
	}
	states, unreadable, err := x.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("walletindex: rehydrating: %w", err)
	}
	for _, bad := range unreadable {
		x.logger.Warn("skipping unreadable wallet snapshot",
			"room_id", bad.RoomID,
			"error", bad.Err,
		)
	}
	loaded := 0
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, state := range states {
		if existing, ok := x.rooms[state.RoomID]; ok && !state.LastAppliedAt.After(existing.LastAppliedAt) {
			continue
		}
		restored := state.clone()
		x.rooms[state.RoomID] = &restored
		loaded++
	}
	x.logger.Info("wallet state rehydrated", "rooms", loaded, "unreadable", len(unreadable))
	return loaded, nil
}

func (x *Index) persist(ctx context.Context, snapshot RoomWalletState) error {
	if x.store == nil {
		return nil
	}
	if err := x.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("walletindex: saving snapshot: %w", &syncerr.PersistError{RoomID: snapshot.RoomID, Err: err})
	}
	return nil
}

func (x *Index) threshold(ctx context.Context, walletID string, fallback int) int {
	if x.thresholds == nil {
		return fallback
	}
	required, err := x.thresholds.RequiredSignatures(ctx, walletID)
	if err != nil || required <= 0 {
		x.logger.Debug("engine threshold unavailable, using descriptor",
			"wallet_id", walletID,
			"descriptor_threshold", fallback,
			"error", err,
		)
		return fallback
	}
	return required
}

func (x *Index) descriptorThreshold(roomID ref.RoomID, wallet Wallet) int {
	if wallet.Descriptor == "" {
		return 0
	}
	parsed, err := x.parser.ParseDescriptor(wallet.Descriptor)
	if err != nil {
		x.logger.Warn("wallet descriptor unparseable",
			"room_id", roomID,
			"wallet_id", wallet.ID,
			"error", err,
		)
		return 0
	}
	return parsed.Threshold
}

func advance(state *RoomWalletState, eventID ref.EventID, at time.Time) {
	state.LastAppliedEventID = eventID
	if at.After(state.LastAppliedAt) {
		state.LastAppliedAt = at
	}
}
