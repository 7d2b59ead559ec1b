// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/contact"
	"github.com/bureau-foundation/walletsync/lib/dispatch"
	"github.com/bureau-foundation/walletsync/lib/engine"
	"github.com/bureau-foundation/walletsync/lib/handled"
	"github.com/bureau-foundation/walletsync/lib/outbound"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/transport"
	"github.com/bureau-foundation/walletsync/lib/walletindex"
)

const (
	defaultRetryBudget       = 1
	defaultRepublishInterval = time.Minute
	draftLeaveTimeout        = 30 * time.Second
	draftLeaveReason         = "draft sync room"
)

// Config holds the Coordinator's collaborators. Transport, Handled,
// Wallets, and Contacts are required.
type Config struct {
	Transport transport.Transport

	// Live delivers pushed updates. Nil runs on backfill alone.
	Live transport.LiveSource

	// Connectivity reports link transitions. Nil disables reconnect
	// resync.
	Connectivity transport.Connectivity

	Handled  handled.Store
	Wallets  *walletindex.Index
	Contacts *contact.Book

	// Cursors persists per-room backfill positions. Nil keeps them in
	// memory.
	Cursors transport.CursorStore

	// Sender and Engine together enable sync-marker republishing.
	// Either nil disables it.
	Sender *outbound.Sender
	Engine engine.PendingPublisher

	// RetryBudget is the number of full re-backfills a deferred event
	// gets before it is marked handled for good. Defaults to 1.
	RetryBudget int

	// RepublishInterval is how often local pending state is compared
	// with the sync room's markers. Defaults to one minute.
	RepublishInterval time.Duration

	// Backoff paces retries of the initial room listing and of each
	// room's history fetches.
	Backoff transport.Backoff

	// OnNotice receives error reports from every room. It runs on the
	// reporting room's goroutine and must not block.
	OnNotice func(dispatch.Notice)

	Clock   clock.Clock
	Metrics *syncmetrics.Metrics
	Logger  *slog.Logger
}

// Coordinator owns the set of room tasks for one account.
type Coordinator struct {
	transport    transport.Transport
	live         transport.LiveSource
	connectivity transport.Connectivity
	handled      handled.Store
	wallets      *walletindex.Index
	contacts     *contact.Book
	cursors      transport.CursorStore
	sender       *outbound.Sender
	engine       engine.PendingPublisher
	retryBudget  int
	interval     time.Duration
	backoff      transport.Backoff
	onNotice     func(dispatch.Notice)
	clock        clock.Clock
	metrics      *syncmetrics.Metrics
	logger       *slog.Logger

	mu             sync.Mutex
	group          *errgroup.Group
	groupCtx       context.Context
	rooms          map[ref.RoomID]*roomTask
	deferrals      map[deferralKey]int
	syncCandidates map[ref.RoomID]bool
	syncActivity   map[ref.RoomID]bool
	acks           map[ref.RoomID]map[ackKey]ack
	disconnectedAt time.Time

	republishing atomic.Bool
}

type roomTask struct {
	room   *dispatch.Room
	cancel context.CancelFunc
	done   chan struct{}
}

type deferralKey struct {
	roomID  ref.RoomID
	eventID ref.EventID
}

// New validates cfg and returns a Coordinator ready to Run.
func New(cfg Config) (*Coordinator, error) {
	var errs []error
	if cfg.Transport == nil {
		errs = append(errs, errors.New("Transport is required"))
	}
	if cfg.Handled == nil {
		errs = append(errs, errors.New("Handled is required"))
	}
	if cfg.Wallets == nil {
		errs = append(errs, errors.New("Wallets is required"))
	}
	if cfg.Contacts == nil {
		errs = append(errs, errors.New("Contacts is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("coordinator: invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cursors := cfg.Cursors
	if cursors == nil {
		cursors = transport.NewMemoryCursors()
	}
	retryBudget := cfg.RetryBudget
	if retryBudget <= 0 {
		retryBudget = defaultRetryBudget
	}
	interval := cfg.RepublishInterval
	if interval <= 0 {
		interval = defaultRepublishInterval
	}
	backoff := cfg.Backoff
	if backoff == (transport.Backoff{}) {
		backoff = transport.DefaultBackoff
	}
	coordinatorClock := cfg.Clock
	if coordinatorClock == nil {
		coordinatorClock = clock.Real()
	}

	return &Coordinator{
		transport:      cfg.Transport,
		live:           cfg.Live,
		connectivity:   cfg.Connectivity,
		handled:        cfg.Handled,
		wallets:        cfg.Wallets,
		contacts:       cfg.Contacts,
		cursors:        cursors,
		sender:         cfg.Sender,
		engine:         cfg.Engine,
		retryBudget:    retryBudget,
		interval:       interval,
		backoff:        backoff,
		onNotice:       cfg.OnNotice,
		clock:          coordinatorClock,
		metrics:        cfg.Metrics,
		logger:         logger,
		rooms:          make(map[ref.RoomID]*roomTask),
		deferrals:      make(map[deferralKey]int),
		syncCandidates: make(map[ref.RoomID]bool),
		syncActivity:   make(map[ref.RoomID]bool),
		acks:           make(map[ref.RoomID]map[ackKey]ack),
	}, nil
}

// Run restores persisted wallet state, starts a task per joined room,
// and routes live updates until ctx is done. Returns an error only
// when the joined rooms cannot be listed.
func (c *Coordinator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	c.mu.Lock()
	c.group, c.groupCtx = group, groupCtx
	c.mu.Unlock()

	restored, err := c.wallets.Rehydrate(ctx)
	if err != nil {
		c.logger.Warn("restoring wallet snapshots failed", "error", err)
	} else {
		c.logger.Info("restored wallet snapshots", "rooms", restored)
	}

	rooms, err := c.listRooms(groupCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for _, roomID := range rooms {
		c.addRoom(groupCtx, roomID)
	}
	c.logger.Info("coordinator started", "rooms", len(rooms))

	group.Go(func() error { return c.loop(groupCtx) })
	return group.Wait()
}

func (c *Coordinator) listRooms(ctx context.Context) ([]ref.RoomID, error) {
	for attempt := 0; ; attempt++ {
		rooms, err := c.transport.ListRooms(ctx)
		if err == nil {
			return rooms, nil
		}
		if !syncerr.IsRetryable(err) {
			return nil, fmt.Errorf("coordinator: listing rooms: %w", err)
		}
		c.logger.Warn("listing rooms failed, retrying", "attempt", attempt+1, "error", err)
		if waitErr := c.backoff.Wait(ctx, c.clock, attempt); waitErr != nil {
			return nil, fmt.Errorf("coordinator: listing rooms: %w", err)
		}
	}
}

func (c *Coordinator) loop(ctx context.Context) error {
	var updates <-chan transport.Update
	if c.live != nil {
		updates = c.live.Updates()
	}
	var changes <-chan transport.ConnectivityChange
	if c.connectivity != nil {
		changes = c.connectivity.Connectivity()
	}
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopAll()
			return nil

		case update, ok := <-updates:
			if !ok {
				c.logger.Warn("live source stopped")
				updates = nil
				continue
			}
			c.route(ctx, update)

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.onConnectivity(change)

		case <-ticker.C:
			c.startRepublish(ctx)
			c.reportPending()
		}
	}
}

// startRepublish runs one Republish pass on the task group. A tick that
// finds the previous pass still sending is skipped.
func (c *Coordinator) startRepublish(ctx context.Context) {
	if !c.republishing.CompareAndSwap(false, true) {
		c.logger.Debug("previous republish still running, skipping tick")
		return
	}
	c.group.Go(func() error {
		defer c.republishing.Store(false)
		if err := c.Republish(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("republishing sync markers failed", "error", err)
		}
		return nil
	})
}

// route hands a live update to its room, starting or stopping the
// room's task as membership changes.
func (c *Coordinator) route(ctx context.Context, update transport.Update) {
	if update.Left {
		c.leaveRoom(ctx, update.RoomID)
		return
	}
	task := c.task(update.RoomID)
	if task == nil {
		c.logger.Info("joined new room", "room_id", update.RoomID.String())
		task = c.startRoom(update.RoomID)
		c.classifyJoined(ctx, update.RoomID)
	}
	task.room.Deliver(update)
}

// classifyJoined reads a newly joined room's tags off the live loop and
// records it as a sync room candidate when tagged.
func (c *Coordinator) classifyJoined(ctx context.Context, roomID ref.RoomID) {
	c.group.Go(func() error {
		tags, err := c.transport.RoomTags(ctx, roomID)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("reading room tags failed", "room_id", roomID.String(), "error", err)
			}
			return nil
		}
		if !slices.Contains(tags, schema.TagSync) {
			return nil
		}
		c.mu.Lock()
		if _, running := c.rooms[roomID]; running {
			c.syncCandidates[roomID] = true
		}
		c.mu.Unlock()
		return nil
	})
}

// onConnectivity requests a resync of every live room that has seen
// nothing since the link went down.
func (c *Coordinator) onConnectivity(change transport.ConnectivityChange) {
	c.metrics.SetConnected(change.Connected)
	c.mu.Lock()
	if !change.Connected {
		if c.disconnectedAt.IsZero() {
			c.disconnectedAt = change.At
		}
		c.mu.Unlock()
		c.logger.Warn("connection to homeserver lost")
		return
	}
	since := c.disconnectedAt
	c.disconnectedAt = time.Time{}
	tasks := c.tasksLocked()
	c.mu.Unlock()

	if since.IsZero() {
		return
	}
	resynced := 0
	for _, task := range tasks {
		if task.room.State() != dispatch.Live {
			continue
		}
		if task.room.LastActivity().Before(since) {
			task.room.RequestBackfill(false, syncmetrics.BackfillReconnect)
			resynced++
		}
	}
	c.logger.Info("connection to homeserver restored",
		"offline", change.At.Sub(since).String(),
		"rooms_resynced", resynced,
	)
}

// addRoom classifies a room joined at session start and starts its
// task. Draft sync rooms are left instead.
func (c *Coordinator) addRoom(ctx context.Context, roomID ref.RoomID) {
	name, err := c.transport.RoomName(ctx, roomID)
	if err != nil {
		c.logger.Warn("reading room name failed", "room_id", roomID.String(), "error", err)
	}
	tags, err := c.transport.RoomTags(ctx, roomID)
	if err != nil {
		c.logger.Warn("reading room tags failed", "room_id", roomID.String(), "error", err)
	}

	if IsDraftSyncRoom(name, tags) {
		c.cleanupDraft(roomID)
		return
	}
	if slices.Contains(tags, schema.TagSync) {
		c.mu.Lock()
		c.syncCandidates[roomID] = true
		c.mu.Unlock()
	}
	c.resetUnrestored(ctx, roomID)
	c.startRoom(roomID)
}

// resetUnrestored forgets which events of a room were handled when the
// room came back from storage without wallet state. Handled records are
// only valid alongside the state they produced; without it the room's
// history must be replayed from the start. Contact relationships live
// only in memory, so rooms that never held a wallet are replayed too.
func (c *Coordinator) resetUnrestored(ctx context.Context, roomID ref.RoomID) {
	if _, restored := c.wallets.Get(roomID); restored {
		return
	}
	count, err := c.handled.Count(ctx, roomID)
	if err != nil {
		c.logger.Warn("counting handled events failed", "room_id", roomID.String(), "error", err)
		return
	}
	if count == 0 {
		return
	}
	if err := c.handled.Prune(ctx, roomID); err != nil {
		c.logger.Warn("pruning handled events failed", "room_id", roomID.String(), "error", err)
		return
	}
	if err := c.cursors.Delete(ctx, roomID); err != nil {
		c.logger.Warn("deleting backfill cursor failed", "room_id", roomID.String(), "error", err)
	}
	c.logger.Info("replaying room without restored wallet state",
		"room_id", roomID.String(),
		"handled_events", count,
	)
}

// IsDraftSyncRoom reports whether a room looks like a sync room whose
// creation never finished: it carries the sync room's name but the
// creating client never tagged it.
func IsDraftSyncRoom(name string, tags []string) bool {
	return name == schema.TagSync && len(tags) == 0
}

// cleanupDraft leaves a draft sync room without waiting for the
// result. Failures are logged; the room is simply tried again next
// session.
func (c *Coordinator) cleanupDraft(roomID ref.RoomID) {
	c.logger.Info("leaving draft sync room", "room_id", roomID.String())
	c.group.Go(func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.groupCtx), draftLeaveTimeout)
		defer cancel()
		if err := c.transport.LeaveRoom(ctx, roomID, draftLeaveReason); err != nil {
			c.logger.Warn("leaving draft sync room failed", "room_id", roomID.String(), "error", err)
			return nil
		}
		c.metrics.DraftCleaned()
		return nil
	})
}

// startRoom starts the room's task, or returns the one already
// running.
func (c *Coordinator) startRoom(roomID ref.RoomID) *roomTask {
	c.mu.Lock()
	if task, running := c.rooms[roomID]; running {
		c.mu.Unlock()
		return task
	}
	roomCtx, cancel := context.WithCancel(c.groupCtx)
	room := dispatch.NewRoom(dispatch.Config{
		RoomID:    roomID,
		Transport: c.transport,
		Handled:   c.handled,
		Wallets:   c.wallets,
		Contacts:  c.contacts,
		Cursors:   c.cursors,
		Hooks: dispatch.Hooks{
			Deferred: c.onDeferred,
			Notice:   c.onNoticeReport,
			SyncAck:  c.onSyncAck,
		},
		Backoff: c.backoff,
		Clock:   c.clock,
		Metrics: c.metrics,
		Logger:  c.logger,
	})
	task := &roomTask{room: room, cancel: cancel, done: make(chan struct{})}
	c.rooms[roomID] = task
	c.mu.Unlock()

	c.group.Go(func() error {
		defer close(task.done)
		return room.Run(roomCtx)
	})
	return task
}

// leaveRoom stops a room's task and drops everything derived from it.
func (c *Coordinator) leaveRoom(ctx context.Context, roomID ref.RoomID) {
	c.mu.Lock()
	task := c.rooms[roomID]
	delete(c.rooms, roomID)
	delete(c.syncCandidates, roomID)
	delete(c.syncActivity, roomID)
	delete(c.acks, roomID)
	c.mu.Unlock()

	if task != nil {
		task.cancel()
		<-task.done
	}

	// The task may have deferred an event while it was stopping.
	c.mu.Lock()
	for key := range c.deferrals {
		if key.roomID == roomID {
			delete(c.deferrals, key)
		}
	}
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if err := c.wallets.Remove(ctx, roomID); err != nil {
		c.logger.Warn("removing wallet state failed", "room_id", roomID.String(), "error", err)
	}
	if err := c.handled.Prune(ctx, roomID); err != nil {
		c.logger.Warn("pruning handled events failed", "room_id", roomID.String(), "error", err)
	}
	if err := c.cursors.Delete(ctx, roomID); err != nil {
		c.logger.Warn("deleting backfill cursor failed", "room_id", roomID.String(), "error", err)
	}
	c.logger.Info("left room", "room_id", roomID.String())
}

func (c *Coordinator) stopAll() {
	c.mu.Lock()
	tasks := c.tasksLocked()
	c.mu.Unlock()
	for _, task := range tasks {
		task.cancel()
	}
}

// onDeferred grants a deferred event its re-backfills and marks it
// handled once they are spent.
func (c *Coordinator) onDeferred(deferred dispatch.Deferred) {
	key := deferralKey{roomID: deferred.RoomID, eventID: deferred.Event.EventID}
	c.mu.Lock()
	attempts := c.deferrals[key]
	exhausted := attempts >= c.retryBudget
	if exhausted {
		delete(c.deferrals, key)
	} else {
		c.deferrals[key] = attempts + 1
	}
	task := c.rooms[deferred.RoomID]
	c.mu.Unlock()

	if !exhausted {
		if task != nil {
			task.room.RequestBackfill(true, syncmetrics.BackfillInconsistent)
		}
		return
	}

	c.logger.Error("transaction event references a wallet that never appeared",
		"room_id", deferred.RoomID.String(),
		"event_id", deferred.Event.EventID.String(),
		"init_event_id", deferred.Err.InitEventID.String(),
		"attempts", attempts+1,
	)
	if err := c.handled.MarkHandled(context.WithoutCancel(c.groupCtx), deferred.RoomID, deferred.Event.EventID); err != nil {
		c.logger.Warn("marking deferred event handled failed",
			"room_id", deferred.RoomID.String(),
			"event_id", deferred.Event.EventID.String(),
			"error", err,
		)
	}
}

func (c *Coordinator) onNoticeReport(notice dispatch.Notice) {
	c.noteSyncActivity(notice.RoomID)
	if c.onNotice != nil {
		c.onNotice(notice)
	}
}

// Rooms returns the rooms that currently have a running task, sorted.
func (c *Coordinator) Rooms() []ref.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]ref.RoomID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	slices.SortFunc(rooms, compareRooms)
	return rooms
}

// RoomState returns the state of a room's task, or Idle when no task
// runs for it.
func (c *Coordinator) RoomState(roomID ref.RoomID) dispatch.State {
	if task := c.task(roomID); task != nil {
		return task.room.State()
	}
	return dispatch.Idle
}

func (c *Coordinator) task(roomID ref.RoomID) *roomTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *Coordinator) tasksLocked() []*roomTask {
	tasks := make([]*roomTask, 0, len(c.rooms))
	for _, task := range c.rooms {
		tasks = append(tasks, task)
	}
	return tasks
}

// reportPending publishes the open transaction count across rooms.
func (c *Coordinator) reportPending() {
	open := 0
	for _, state := range c.wallets.ListAll() {
		for _, snapshot := range state.PendingTransactions {
			if snapshot.Open() {
				open++
			}
		}
	}
	c.metrics.SetPendingTransactions(open)
}

func compareRooms(a, b ref.RoomID) int {
	return cmp.Compare(a.String(), b.String())
}
