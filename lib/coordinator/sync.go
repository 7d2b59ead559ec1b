// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/walletsync/lib/dispatch"
	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/ref"
)

// ackKey identifies one piece of published local state.
type ackKey struct {
	scope    string
	walletID string
}

// ack is the newest marker seen for an ackKey in one room.
type ack struct {
	digest   string
	sequence int64
}

// SyncRoom returns the account's sync room: the room tagged as the
// sync room, or, when several are, the first that carried sync or
// error traffic. False when no joined room is tagged.
func (c *Coordinator) SyncRoom() (ref.RoomID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncRoomLocked()
}

func (c *Coordinator) syncRoomLocked() (ref.RoomID, bool) {
	candidates := make([]ref.RoomID, 0, len(c.syncCandidates))
	for roomID := range c.syncCandidates {
		candidates = append(candidates, roomID)
	}
	if len(candidates) == 0 {
		return ref.RoomID{}, false
	}
	slices.SortFunc(candidates, compareRooms)
	for _, roomID := range candidates {
		if c.syncActivity[roomID] {
			return roomID, true
		}
	}
	return candidates[0], true
}

func (c *Coordinator) noteSyncActivity(roomID ref.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncCandidates[roomID] {
		c.syncActivity[roomID] = true
	}
}

func (c *Coordinator) onSyncAck(observed dispatch.SyncAck) {
	c.noteSyncActivity(observed.RoomID)

	key := ackKey{scope: observed.Marker.Scope, walletID: observed.Marker.WalletID}
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.acks[observed.RoomID]
	if room == nil {
		room = make(map[ackKey]ack)
		c.acks[observed.RoomID] = room
	}
	previous := room[key]
	room[key] = ack{
		digest:   observed.Marker.Digest,
		sequence: max(previous.sequence, observed.Marker.Sequence),
	}
}

// AcknowledgedDigest returns the newest digest observed in the sync
// room for a wallet and scope.
func (c *Coordinator) AcknowledgedDigest(scope, walletID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	syncRoom, ok := c.syncRoomLocked()
	if !ok {
		return "", false
	}
	observed, ok := c.acks[syncRoom][ackKey{scope: scope, walletID: walletID}]
	return observed.digest, ok
}

// Republish publishes a fresh sync marker for every piece of local
// pending state whose digest differs from the one last acknowledged in
// the sync room. It does nothing until the sync room has caught up
// with its history. Failed sends are retried on the next call.
func (c *Coordinator) Republish(ctx context.Context) error {
	if c.sender == nil || c.engine == nil {
		return nil
	}
	syncRoom, ok := c.SyncRoom()
	if !ok {
		c.logger.Debug("no sync room, skipping republish")
		return nil
	}
	if state := c.RoomState(syncRoom); state != dispatch.Live {
		c.logger.Debug("sync room not caught up, skipping republish", "state", state.String())
		return nil
	}

	states, err := c.engine.PendingStates(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: listing pending state: %w", err)
	}

	var errs []error
	for _, state := range states {
		key := ackKey{scope: state.Scope, walletID: state.WalletID}
		digest := Digest(state.Payload)

		c.mu.Lock()
		previous, seen := c.acks[syncRoom][key]
		c.mu.Unlock()
		if seen && previous.digest == digest {
			continue
		}

		marker := eventcodec.SyncMarker{
			Scope:    state.Scope,
			WalletID: state.WalletID,
			Digest:   digest,
			Sequence: previous.sequence + 1,
		}
		eventID, err := c.sender.SendWithRetry(ctx, syncRoom, marker)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", state.Scope, state.WalletID, err))
			continue
		}
		c.metrics.SyncMarker()
		c.logger.Info("republished sync marker",
			"room_id", syncRoom.String(),
			"event_id", eventID.String(),
			"scope", state.Scope,
			"wallet_id", state.WalletID,
			"sequence", marker.Sequence,
		)

		// Record the marker now so the next pass does not resend it
		// before its own echo arrives.
		c.onSyncAck(dispatch.SyncAck{RoomID: syncRoom, EventID: eventID, Marker: marker})
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("coordinator: republishing: %w", err)
	}
	return nil
}
