// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/contact"
	"github.com/bureau-foundation/walletsync/lib/coordinator"
	"github.com/bureau-foundation/walletsync/lib/dispatch"
	"github.com/bureau-foundation/walletsync/lib/engine"
	"github.com/bureau-foundation/walletsync/lib/handled"
	"github.com/bureau-foundation/walletsync/lib/outbound"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/transport"
	"github.com/bureau-foundation/walletsync/lib/walletindex"
)

// Schemas returns the DDL a pool handed to [Config.Pool] must carry.
func Schemas() []string {
	return []string{handled.Schema, walletindex.Schema, transport.CursorSchema}
}

// Engine is the local wallet engine as the session sees it.
type Engine interface {
	engine.ThresholdLookup
	engine.PendingPublisher
}

// Config assembles a Session. Transport is required.
type Config struct {
	Transport transport.Transport

	// Live and Connectivity default to Transport when it implements
	// them.
	Live         transport.LiveSource
	Connectivity transport.Connectivity

	// Engine answers thresholds and supplies local pending state. Nil
	// falls back to descriptor thresholds and disables republishing.
	Engine Engine

	// Parser parses wallet descriptors. Defaults to the reference
	// parser.
	Parser engine.DescriptorParser

	// Pool persists state. Nil keeps it in memory.
	Pool *sqlitepool.Pool

	// Sealer encrypts wallet snapshots in Pool. Ignored without Pool.
	Sealer walletindex.Sealer

	// Limiter paces outbound sends. Nil sends unpaced.
	Limiter *rate.Limiter

	Retry             outbound.RetryPolicy
	RetryBudget       int
	RepublishInterval time.Duration
	Backoff           transport.Backoff

	Clock   clock.Clock
	Metrics *syncmetrics.Metrics
	Logger  *slog.Logger
}

// runner is implemented by transports with a background loop.
type runner interface {
	Run(ctx context.Context) error
}

// Session is one account's running bridge.
type Session struct {
	transport   transport.Transport
	wallets     *walletindex.Index
	contacts    *contact.Book
	sender      *outbound.Sender
	coordinator *coordinator.Coordinator
	notices     *noticeFanout
	logger      *slog.Logger
}

// New wires the components together. Nothing runs until Run.
func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("walletsync: Config.Transport is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	live := cfg.Live
	if live == nil {
		live, _ = cfg.Transport.(transport.LiveSource)
	}
	connectivity := cfg.Connectivity
	if connectivity == nil {
		connectivity, _ = cfg.Transport.(transport.Connectivity)
	}

	var (
		handledStore handled.Store         = handled.NewMemoryStore()
		cursors      transport.CursorStore = transport.NewMemoryCursors()
		snapshots    walletindex.SnapshotStore
	)
	if cfg.Pool != nil {
		handledStore = handled.NewSQLiteStore(cfg.Pool)
		cursors = transport.NewSQLiteCursors(cfg.Pool)
		if cfg.Sealer != nil {
			snapshots = walletindex.NewSealedSQLiteStore(cfg.Pool, cfg.Sealer)
		} else {
			snapshots = walletindex.NewSQLiteStore(cfg.Pool)
		}
	}

	wallets := walletindex.New(walletindex.Config{
		Thresholds: cfg.Engine,
		Parser:     cfg.Parser,
		Store:      snapshots,
		Logger:     logger.With("component", "walletindex"),
	})
	contacts := contact.NewBook(cfg.Transport.LocalUser(), logger.With("component", "contact"))
	sender := outbound.New(outbound.Config{
		Transport: cfg.Transport,
		Limiter:   cfg.Limiter,
		Clock:     cfg.Clock,
		Retry:     cfg.Retry,
		Metrics:   cfg.Metrics,
		Logger:    logger.With("component", "outbound"),
	})
	notices := newNoticeFanout(logger)

	syncCoordinator, err := coordinator.New(coordinator.Config{
		Transport:         cfg.Transport,
		Live:              live,
		Connectivity:      connectivity,
		Handled:           handledStore,
		Wallets:           wallets,
		Contacts:          contacts,
		Cursors:           cursors,
		Sender:            sender,
		Engine:            cfg.Engine,
		RetryBudget:       cfg.RetryBudget,
		RepublishInterval: cfg.RepublishInterval,
		Backoff:           cfg.Backoff,
		OnNotice:          notices.publish,
		Clock:             cfg.Clock,
		Metrics:           cfg.Metrics,
		Logger:            logger.With("component", "coordinator"),
	})
	if err != nil {
		return nil, fmt.Errorf("walletsync: %w", err)
	}

	return &Session{
		transport:   cfg.Transport,
		wallets:     wallets,
		contacts:    contacts,
		sender:      sender,
		coordinator: syncCoordinator,
		notices:     notices,
		logger:      logger,
	}, nil
}

// Run runs the transport's background loop, if it has one, and the
// coordinator until ctx is done or either fails.
func (s *Session) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	if background, ok := s.transport.(runner); ok {
		group.Go(func() error {
			if err := background.Run(groupCtx); err != nil && groupCtx.Err() == nil {
				return fmt.Errorf("walletsync: transport: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return s.coordinator.Run(groupCtx)
	})
	s.logger.Info("session started", "user_id", s.transport.LocalUser().String())
	err := group.Wait()
	s.logger.Info("session stopped")
	return err
}

// ObserveRoomWalletState streams the room's wallet state, starting with
// its current value when the room has one. The channel closes when ctx
// is done.
func (s *Session) ObserveRoomWalletState(ctx context.Context, roomID ref.RoomID) <-chan walletindex.RoomWalletState {
	return s.wallets.Subscribe(ctx, roomID)
}

// ObserveContactRelationship streams the relationship with peer,
// starting with its current value.
func (s *Session) ObserveContactRelationship(ctx context.Context, peer ref.UserID) <-chan contact.Relationship {
	return s.contacts.Subscribe(ctx, peer)
}

// ListPendingTransactions returns the room's transactions that are not
// yet broadcast or rejected.
func (s *Session) ListPendingTransactions(roomID ref.RoomID) []walletindex.TransactionSnapshot {
	return s.wallets.PendingTransactions(roomID)
}

// Wallets returns every room's wallet state, most recently active
// first.
func (s *Session) Wallets() []walletindex.RoomWalletState {
	return s.wallets.ListAll()
}

// Contacts returns every known relationship.
func (s *Session) Contacts() []contact.Relationship {
	return s.contacts.List()
}

// Notices streams error reports posted to any joined room from the time
// of the call. A subscriber that stops reading loses notices rather
// than stalling rooms.
func (s *Session) Notices(ctx context.Context) <-chan dispatch.Notice {
	return s.notices.subscribe(ctx)
}

// Sender posts domain events. It also implements engine.EventSink for
// the wallet engine.
func (s *Session) Sender() *outbound.Sender {
	return s.sender
}

// SyncRoom returns the account's sync room, if one is joined.
func (s *Session) SyncRoom() (ref.RoomID, bool) {
	return s.coordinator.SyncRoom()
}

// RoomState reports a room dispatcher's lifecycle state.
func (s *Session) RoomState(roomID ref.RoomID) dispatch.State {
	return s.coordinator.RoomState(roomID)
}
