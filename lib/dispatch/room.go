// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/contact"
	"github.com/bureau-foundation/walletsync/lib/handled"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/transport"
	"github.com/bureau-foundation/walletsync/lib/walletindex"
)

// State is the lifecycle position of a room task.
type State int

const (
	Idle State = iota
	Backfilling
	Live
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Backfilling:
		return "backfilling"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds a Room's collaborators. RoomID, Transport, Handled,
// Wallets, and Contacts are required.
type Config struct {
	RoomID    ref.RoomID
	Transport transport.Transport
	Handled   handled.Store
	Wallets   *walletindex.Index
	Contacts  *contact.Book

	// Cursors persists the backfill position. Nil keeps it in memory
	// for the lifetime of the Room.
	Cursors transport.CursorStore

	Hooks Hooks

	// Backoff paces retries of a failed history fetch. Zero uses
	// transport.DefaultBackoff.
	Backoff transport.Backoff

	Clock   clock.Clock
	Metrics *syncmetrics.Metrics
	Logger  *slog.Logger
}

// Room is the inbound task of one room. Create with [NewRoom] and drive
// with [Room.Run]; Deliver and RequestBackfill may be called from any
// goroutine.
type Room struct {
	roomID    ref.RoomID
	transport transport.Transport
	handled   handled.Store
	wallets   *walletindex.Index
	contacts  *contact.Book
	cursors   transport.CursorStore
	hooks     Hooks
	backoff   transport.Backoff
	clock     clock.Clock
	metrics   *syncmetrics.Metrics
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	mailbox      []item
	lastActivity time.Time

	wake chan struct{}
}

// item is one unit of mailbox work: either a batch of live events or
// a backfill request.
type item struct {
	events []schema.RoomEvent

	backfill  bool
	fromStart bool
	reason    string
}

// NewRoom returns an Idle room task.
func NewRoom(cfg Config) *Room {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cursors := cfg.Cursors
	if cursors == nil {
		cursors = transport.NewMemoryCursors()
	}
	backoff := cfg.Backoff
	if backoff == (transport.Backoff{}) {
		backoff = transport.DefaultBackoff
	}
	roomClock := cfg.Clock
	if roomClock == nil {
		roomClock = clock.Real()
	}
	return &Room{
		roomID:    cfg.RoomID,
		transport: cfg.Transport,
		handled:   cfg.Handled,
		wallets:   cfg.Wallets,
		contacts:  cfg.Contacts,
		cursors:   cursors,
		hooks:     cfg.Hooks,
		backoff:   backoff,
		clock:     roomClock,
		metrics:   cfg.Metrics,
		logger:    logger.With("room_id", cfg.RoomID.String()),
		wake:      make(chan struct{}, 1),
	}
}

// RoomID returns the room this task serves.
func (r *Room) RoomID() ref.RoomID { return r.roomID }

// State returns the task's current state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastActivity returns the origin timestamp of the newest event the
// task processed, or the zero time if it has processed none.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Deliver queues a live update. A Gap update first queues a backfill
// from the saved cursor. Never blocks.
func (r *Room) Deliver(update transport.Update) {
	r.mu.Lock()
	if update.Gap {
		r.enqueueBackfillLocked(false, syncmetrics.BackfillGap)
	}
	if len(update.Events) > 0 {
		r.mailbox = append(r.mailbox, item{events: update.Events})
	}
	r.mu.Unlock()
	r.signal()
}

// RequestBackfill queues a backfill. fromStart replays the room from
// its first event instead of the saved cursor; already-handled events
// are skipped either way. A request identical to one already queued
// and not yet started is dropped.
func (r *Room) RequestBackfill(fromStart bool, reason string) {
	r.mu.Lock()
	r.enqueueBackfillLocked(fromStart, reason)
	r.mu.Unlock()
	r.signal()
}

func (r *Room) enqueueBackfillLocked(fromStart bool, reason string) {
	for _, queued := range r.mailbox {
		if queued.backfill && (queued.fromStart || !fromStart) {
			return
		}
	}
	r.mailbox = append(r.mailbox, item{backfill: true, fromStart: fromStart, reason: reason})
}

func (r *Room) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run backfills the room and then applies mailbox work until ctx is
// done. An event being applied when ctx is cancelled runs to
// completion; queued work is dropped. Always returns nil; failures are
// per event and are logged.
func (r *Room) Run(ctx context.Context) error {
	r.metrics.RoomState("", Idle.String())
	defer func() {
		r.setState(Idle)
		r.metrics.RoomState(Idle.String(), "")
	}()

	r.backfill(ctx, false, syncmetrics.BackfillInitial)

	for {
		work, ok := r.next(ctx)
		if !ok {
			return nil
		}
		if work.backfill {
			r.backfill(ctx, work.fromStart, work.reason)
			continue
		}
		for _, event := range work.events {
			if ctx.Err() != nil {
				return nil
			}
			r.apply(ctx, event)
		}
	}
}

// next pops the oldest mailbox item, waiting for one if the mailbox is
// empty. Returns false when ctx is done.
func (r *Room) next(ctx context.Context) (item, bool) {
	for {
		if ctx.Err() != nil {
			return item{}, false
		}
		r.mu.Lock()
		if len(r.mailbox) > 0 {
			work := r.mailbox[0]
			r.mailbox[0] = item{}
			r.mailbox = r.mailbox[1:]
			r.mu.Unlock()
			return work, true
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-ctx.Done():
			return item{}, false
		}
	}
}

func (r *Room) setState(next State) {
	r.mu.Lock()
	previous := r.state
	r.state = next
	r.mu.Unlock()
	if previous != next {
		r.metrics.RoomState(previous.String(), next.String())
		r.logger.Debug("room state changed", "from", previous.String(), "to", next.String())
	}
}

// backfill pages the room's history and applies every page. Transient
// fetch failures are retried with backoff; permanent ones end the
// backfill and the room goes Live with the history it has.
func (r *Room) backfill(ctx context.Context, fromStart bool, reason string) {
	r.setState(Backfilling)
	defer func() {
		if ctx.Err() == nil {
			r.setState(Live)
		}
	}()
	r.metrics.Backfill(reason)

	var cursor transport.Cursor
	if !fromStart {
		saved, err := r.cursors.Load(ctx, r.roomID)
		if err != nil {
			r.logger.Warn("loading backfill cursor failed, starting from the beginning", "error", err)
		} else {
			cursor = saved
		}
	}

	r.logger.Info("backfill started", "reason", reason, "from_start", fromStart, "cursor", string(cursor))

	applied := 0
	// Once an event in this pass is deferred or unsaved the cursor must
	// not move past it, or a restart would never see it again.
	holdCursor := false
	pager := r.transport.Timeline(r.roomID, cursor)
	for attempt := 0; ; {
		page, err := pager.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !syncerr.IsRetryable(err) {
				r.logger.Error("backfill failed", "reason", reason, "error", err)
				return
			}
			r.logger.Warn("backfill page failed, retrying",
				"reason", reason,
				"attempt", attempt+1,
				"error", err,
			)
			if r.backoff.Wait(ctx, r.clock, attempt) != nil {
				return
			}
			attempt++
			// Restart from the last page boundary. Handled events make
			// any replay harmless.
			pager = r.transport.Timeline(r.roomID, cursor)
			continue
		}
		attempt = 0

		for _, event := range page.Events {
			if ctx.Err() != nil {
				return
			}
			if outcome := r.apply(ctx, event); outcome == resultDeferred || outcome == resultNotPersisted {
				holdCursor = true
			}
			applied++
		}

		if page.Next != "" {
			cursor = page.Next
			if !holdCursor {
				if err := r.cursors.Save(context.WithoutCancel(ctx), r.roomID, cursor); err != nil {
					r.logger.Warn("saving backfill cursor failed", "error", err)
				}
			}
		}
		if page.Done {
			break
		}
	}

	r.logger.Info("backfill complete", "reason", reason, "events", applied, "cursor_held", holdCursor)
}

// noteActivity records the newest event timestamp seen.
func (r *Room) noteActivity(at time.Time) {
	r.mu.Lock()
	if at.After(r.lastActivity) {
		r.lastActivity = at
	}
	r.mu.Unlock()
}
