// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/testutil"
	"github.com/bureau-foundation/walletsync/lib/transport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMemory(t *testing.T, pageSize int) *transport.Memory {
	t.Helper()
	memory := transport.NewMemory(transport.MemoryConfig{
		LocalUser: testutil.UserID("local"),
		Clock:     clock.NewFake(epoch),
		PageSize:  pageSize,
	})
	t.Cleanup(memory.Close)
	return memory
}

func drainPages(t *testing.T, pager transport.Pager) ([]schema.RoomEvent, transport.Cursor) {
	t.Helper()
	var events []schema.RoomEvent
	for range 100 {
		page, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, page.Events...)
		if page.Done {
			return events, page.Next
		}
	}
	t.Fatal("pager never finished")
	return nil, ""
}

func TestMemoryTimelinePagesInOrder(t *testing.T) {
	memory := newMemory(t, 2)
	room := testutil.RoomID("wallet")
	memory.AddRoom(room, "Family vault")
	for range 5 {
		memory.Backlog(schema.RoomEvent{RoomID: room, Type: schema.MatrixEventTypeMessage})
	}

	events, cursor := drainPages(t, memory.Timeline(room, ""))
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	history := memory.History(room)
	for index := range events {
		if events[index].EventID != history[index].EventID {
			t.Errorf("event %d out of order", index)
		}
		if !events[index].Timestamp.Equal(epoch) {
			t.Errorf("event %d timestamp = %v, want the fake clock's time", index, events[index].Timestamp)
		}
	}

	// Resuming from the final cursor yields only what arrives later.
	memory.Backlog(schema.RoomEvent{RoomID: room, Type: schema.MatrixEventTypeMessage})
	later, _ := drainPages(t, memory.Timeline(room, cursor))
	if len(later) != 1 {
		t.Fatalf("resume returned %d events, want 1", len(later))
	}
}

func TestMemoryTimelineInvalidCursor(t *testing.T) {
	memory := newMemory(t, 10)
	room := testutil.RoomID("wallet")
	memory.AddRoom(room, "")

	_, err := memory.Timeline(room, "not-a-number").Next(context.Background())
	var transportErr *syncerr.TransportError
	if !errors.As(err, &transportErr) || transportErr.Retryable {
		t.Fatalf("expected non-retryable TransportError, got %v", err)
	}
}

func TestMemorySendDeliversLive(t *testing.T) {
	memory := newMemory(t, 10)
	room := testutil.RoomID("wallet")
	memory.AddRoom(room, "")

	eventID, err := memory.SendEvent(context.Background(), room, schema.EventTypeSync, map[string]any{"msgtype": schema.MsgTypeSyncMarker})
	if err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	update := testutil.RequireReceive(t, memory.Updates(), time.Second, "waiting for live update")
	if update.RoomID != room || len(update.Events) != 1 || update.Events[0].EventID != eventID {
		t.Fatalf("unexpected update: %+v", update)
	}
	if update.Events[0].Sender != memory.LocalUser() {
		t.Errorf("sender = %s, want local user", update.Events[0].Sender)
	}
	if sent := memory.Sent(); len(sent) != 1 || sent[0].EventID != eventID {
		t.Errorf("Sent() = %+v", sent)
	}
}

func TestMemorySendFailures(t *testing.T) {
	memory := newMemory(t, 10)
	room := testutil.RoomID("wallet")
	memory.AddRoom(room, "")

	memory.FailSends(errors.New("homeserver unavailable"))
	_, err := memory.SendEvent(context.Background(), room, schema.EventTypeSync, map[string]any{})
	if !syncerr.IsRetryable(err) {
		t.Fatalf("expected retryable TransportError, got %v", err)
	}

	memory.FailSends(nil)
	if _, err := memory.SendEvent(context.Background(), testutil.RoomID("unknown"), schema.EventTypeSync, map[string]any{}); err == nil || syncerr.IsRetryable(err) {
		t.Fatalf("unknown room: expected non-retryable error, got %v", err)
	}
}

func TestMemoryConnectivity(t *testing.T) {
	memory := newMemory(t, 10)
	memory.SetConnected(true)
	testutil.RequireNoReceive(t, memory.Connectivity(), 20*time.Millisecond, "repeat of current state")

	memory.SetConnected(false)
	change := testutil.RequireReceive(t, memory.Connectivity(), time.Second)
	if change.Connected || !change.At.Equal(epoch) {
		t.Fatalf("unexpected change: %+v", change)
	}
	if _, err := memory.ListRooms(context.Background()); !syncerr.IsRetryable(err) {
		t.Fatalf("ListRooms while disconnected: got %v", err)
	}

	memory.SetConnected(true)
	if change := testutil.RequireReceive(t, memory.Connectivity(), time.Second); !change.Connected {
		t.Fatal("expected reconnect")
	}
}

func TestMemoryLeaveRoom(t *testing.T) {
	memory := newMemory(t, 10)
	kept := testutil.RoomID("kept")
	gone := testutil.RoomID("gone")
	memory.AddRoom(kept, "", schema.TagSync)
	memory.AddRoom(gone, schema.TagSync)

	if err := memory.LeaveRoom(context.Background(), gone, ""); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	update := testutil.RequireReceive(t, memory.Updates(), time.Second)
	if update.RoomID != gone || !update.Left {
		t.Fatalf("unexpected update: %+v", update)
	}
	rooms, err := memory.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0] != kept {
		t.Errorf("ListRooms = %v, want [%s]", rooms, kept)
	}
	tags, _ := memory.RoomTags(context.Background(), kept)
	if len(tags) != 1 || tags[0] != schema.TagSync {
		t.Errorf("RoomTags = %v", tags)
	}
}

func TestMemoryCloseClosesChannels(t *testing.T) {
	memory := transport.NewMemory(transport.MemoryConfig{LocalUser: testutil.UserID("local")})
	memory.Close()
	memory.Close()
	testutil.RequireClosed(t, memory.Updates(), time.Second)
	testutil.RequireClosed(t, memory.Connectivity(), time.Second)
	// Delivery after Close is dropped rather than panicking.
	memory.Append(schema.RoomEvent{RoomID: testutil.RoomID("late")})
}
