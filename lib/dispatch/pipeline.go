// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/walletsync/lib/contact"
	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/walletindex"
)

// Hooks receive the events a room task hands off instead of applying.
// Each hook runs on the room's goroutine and must not block; nil hooks
// are skipped.
type Hooks struct {
	// Deferred receives transaction events that arrived before their
	// room's wallet. The event is left unmarked.
	Deferred func(Deferred)

	// Notice receives error reports posted by other participants.
	Notice func(Notice)

	// SyncAck receives sync markers observed in the room.
	SyncAck func(SyncAck)
}

// Deferred identifies an event left unmarked because the state it
// depends on has not been seen yet.
type Deferred struct {
	RoomID ref.RoomID
	Event  schema.RoomEvent
	Err    *syncerr.InconsistentStateError
}

// Notice is an error report relayed from another participant.
type Notice struct {
	RoomID         ref.RoomID
	EventID        ref.EventID
	Sender         ref.UserID
	Code           string
	Message        string
	RelatedEventID ref.EventID
	At             time.Time
}

// SyncAck is a sync marker as it appeared in a room.
type SyncAck struct {
	RoomID  ref.RoomID
	EventID ref.EventID
	Sender  ref.UserID
	Marker  eventcodec.SyncMarker
	At      time.Time
}

type result int

const (
	resultApplied result = iota
	resultDuplicate
	resultUnrecognized
	resultDecodeError
	resultApplyError
	resultDeferred
	resultNotPersisted
)

var resultOutcomes = [...]string{
	resultApplied:      syncmetrics.OutcomeApplied,
	resultDuplicate:    syncmetrics.OutcomeDuplicate,
	resultUnrecognized: syncmetrics.OutcomeUnrecognized,
	resultDecodeError:  syncmetrics.OutcomeDecodeError,
	resultApplyError:   syncmetrics.OutcomeApplyError,
	resultDeferred:     syncmetrics.OutcomeDeferred,
	resultNotPersisted: syncmetrics.OutcomeNotPersisted,
}

// apply runs one event through the pipeline. The event runs to
// completion even if ctx is cancelled partway.
func (r *Room) apply(ctx context.Context, event schema.RoomEvent) result {
	ctx = context.WithoutCancel(ctx)

	kind, outcome := r.process(ctx, event)
	r.metrics.Event(kind.String(), resultOutcomes[outcome])
	if outcome.leavesUnmarked() {
		return outcome
	}

	r.noteActivity(event.Timestamp)
	if err := r.handled.MarkHandled(ctx, r.roomID, event.EventID); err != nil {
		// The event will be applied again on the next backfill; every
		// handler tolerates that.
		r.logger.Warn("marking event handled failed",
			"event_id", event.EventID.String(),
			"error", err,
		)
	}
	return outcome
}

// leavesUnmarked reports whether the event must be seen again: it was
// already handled, it waits on state not yet known, or its effect is
// only in memory.
func (o result) leavesUnmarked() bool {
	return o == resultDuplicate || o == resultDeferred || o == resultNotPersisted
}

func (r *Room) process(ctx context.Context, event schema.RoomEvent) (eventcodec.Kind, result) {
	seen, err := r.handled.Has(ctx, r.roomID, event.EventID)
	if err != nil {
		// Treat as unseen. Handlers are idempotent.
		r.logger.Warn("handled lookup failed",
			"event_id", event.EventID.String(),
			"error", err,
		)
	}
	if seen {
		r.logger.Debug("skipping handled event", "event_id", event.EventID.String())
		return eventcodec.KindUnrecognized, resultDuplicate
	}

	decoded, err := eventcodec.Decode(event)
	if err != nil {
		r.logger.Warn("dropping malformed event",
			"event_id", event.EventID.String(),
			"event_type", event.Type.String(),
			"sender", event.Sender.String(),
			"error", err,
		)
		return eventcodec.KindUnrecognized, resultDecodeError
	}
	if decoded.Kind == eventcodec.KindUnrecognized {
		r.logger.Debug("skipping unrecognized event",
			"event_id", event.EventID.String(),
			"event_type", event.Type.String(),
			"msgtype", event.MsgType(),
		)
		return decoded.Kind, resultUnrecognized
	}

	err = r.route(ctx, event, decoded.Payload)
	var inconsistent *syncerr.InconsistentStateError
	switch {
	case err == nil:
		return decoded.Kind, resultApplied
	case errors.As(err, &inconsistent):
		r.logger.Info("deferring event until its wallet is known",
			"event_id", event.EventID.String(),
			"init_event_id", inconsistent.InitEventID.String(),
		)
		if r.hooks.Deferred != nil {
			r.hooks.Deferred(Deferred{RoomID: r.roomID, Event: event, Err: inconsistent})
		}
		return decoded.Kind, resultDeferred
	case syncerr.IsPersist(err):
		// The in-memory state already holds the change and re-applying
		// it is idempotent. Leaving the event unmarked means the next
		// backfill, in this session or the next, saves it again.
		r.logger.Warn("event applied but not persisted",
			"event_id", event.EventID.String(),
			"kind", decoded.Kind.String(),
			"error", err,
		)
		return decoded.Kind, resultNotPersisted
	default:
		r.logger.Error("applying event failed",
			"event_id", event.EventID.String(),
			"kind", decoded.Kind.String(),
			"error", err,
		)
		return decoded.Kind, resultApplyError
	}
}

// route hands a decoded payload to the component that owns it.
func (r *Room) route(ctx context.Context, event schema.RoomEvent, payload eventcodec.Payload) error {
	switch p := payload.(type) {
	case eventcodec.WalletCreated:
		return r.wallets.OnWalletCreated(ctx, r.roomID, walletindex.Wallet{
			ID:         p.WalletID,
			Name:       p.Name,
			Descriptor: p.Descriptor,
		}, event.EventID, event.Timestamp)

	case eventcodec.TransactionState:
		return r.wallets.OnTransactionState(ctx, r.roomID, p, event.EventID, event.Timestamp)

	case eventcodec.SyncMarker:
		if r.hooks.SyncAck != nil {
			r.hooks.SyncAck(SyncAck{
				RoomID:  r.roomID,
				EventID: event.EventID,
				Sender:  event.Sender,
				Marker:  p,
				At:      event.Timestamp,
			})
		}
		return nil

	case eventcodec.ErrorReport:
		if r.hooks.Notice != nil {
			r.hooks.Notice(Notice{
				RoomID:         r.roomID,
				EventID:        event.EventID,
				Sender:         event.Sender,
				Code:           p.Code,
				Message:        p.Message,
				RelatedEventID: p.RelatedEventID,
				At:             event.Timestamp,
			})
		}
		return nil

	case eventcodec.ContactMessage:
		return r.applyContact(event, p)

	case eventcodec.TextMessage, eventcodec.Encrypted, eventcodec.RoomMemberChanged,
		eventcodec.RoomCreated, eventcodec.RoomNameChanged:
		return nil

	default:
		return fmt.Errorf("dispatch: no route for %T", payload)
	}
}

// applyContact resolves the peer and direction of a contact event and
// feeds the transition to the book.
func (r *Room) applyContact(event schema.RoomEvent, message eventcodec.ContactMessage) error {
	peer, direction, ok := ContactPeer(r.contacts.LocalAccount(), event.Sender, message.Target)
	if !ok {
		r.logger.Debug("contact event does not involve the local account",
			"event_id", event.EventID.String(),
			"sender", event.Sender.String(),
			"target", message.Target.String(),
		)
		return nil
	}
	r.contacts.Apply(peer, message.Kind(), direction, event.Timestamp)
	return nil
}

// ContactPeer works out whom a contact event is about, from the local
// account's point of view. Events the local account sent are outbound
// and concern their target; events anyone else sent are inbound and
// concern the sender. Returns false for events that address a third
// party or outbound events with no target.
func ContactPeer(local, sender, target ref.UserID) (ref.UserID, contact.Direction, bool) {
	if sender == local {
		if target.IsZero() || target == local {
			return ref.UserID{}, 0, false
		}
		return target, contact.Outbound, true
	}
	if !target.IsZero() && target != local {
		return ref.UserID{}, 0, false
	}
	return sender, contact.Inbound, true
}
