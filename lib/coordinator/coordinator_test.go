// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/contact"
	"github.com/bureau-foundation/walletsync/lib/coordinator"
	"github.com/bureau-foundation/walletsync/lib/dispatch"
	"github.com/bureau-foundation/walletsync/lib/engine"
	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/handled"
	"github.com/bureau-foundation/walletsync/lib/outbound"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/testutil"
	"github.com/bureau-foundation/walletsync/lib/transport"
	"github.com/bureau-foundation/walletsync/lib/walletindex"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	epoch      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	twoOfThree = "wsh(sortedmulti(2,[aaaaaaaa]xpubA,[bbbbbbbb]xpubB,[cccccccc]xpubC))"
	walletW1   = eventcodec.WalletCreated{WalletID: "W1", Name: "Family vault", Descriptor: twoOfThree}
)

type fixture struct {
	t           *testing.T
	local       ref.UserID
	peer        ref.UserID
	fakeClock   *clock.Fake
	memory      *transport.Memory
	handled     *handled.MemoryStore
	wallets     *walletindex.Index
	engine      *engine.Static
	metrics     *syncmetrics.Metrics
	notices     chan dispatch.Notice
	coordinator *coordinator.Coordinator

	// retry overrides the sender's single-attempt policy. fakeTimers
	// drives the coordinator's ticker and backoff from fakeClock.
	retry      outbound.RetryPolicy
	fakeTimers bool

	cancel      context.CancelFunc
	done        chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local := testutil.UserID("local")
	f := &fixture{
		t:         t,
		local:     local,
		peer:      testutil.UserID("peer"),
		fakeClock: clock.NewFake(epoch),
		handled:   handled.NewMemoryStore(),
		wallets:   walletindex.New(walletindex.Config{}),
		engine:    engine.NewStatic(),
		metrics:   syncmetrics.New(nil),
		notices:   make(chan dispatch.Notice, 16),
	}
	f.memory = transport.NewMemory(transport.MemoryConfig{LocalUser: local, Clock: f.fakeClock})
	t.Cleanup(f.memory.Close)
	return f
}

// start builds and runs the coordinator over the rooms added so far.
func (f *fixture) start() {
	f.t.Helper()
	retry := f.retry
	if retry.MaxAttempts == 0 {
		retry = outbound.RetryPolicy{MaxAttempts: 1}
	}
	sender := outbound.New(outbound.Config{
		Transport: f.memory,
		Clock:     f.fakeClock,
		Retry:     retry,
		Metrics:   f.metrics,
	})
	var coordinatorClock clock.Clock
	if f.fakeTimers {
		coordinatorClock = f.fakeClock
	}
	c, err := coordinator.New(coordinator.Config{
		Transport:         f.memory,
		Live:              f.memory,
		Connectivity:      f.memory,
		Handled:           f.handled,
		Wallets:           f.wallets,
		Contacts:          contact.NewBook(f.local, nil),
		Sender:            sender,
		Engine:            f.engine,
		RepublishInterval: time.Hour,
		Backoff:           transport.Backoff{Initial: time.Millisecond, Max: time.Millisecond},
		OnNotice:          func(n dispatch.Notice) { f.notices <- n },
		Clock:             coordinatorClock,
		Metrics:           f.metrics,
	})
	if err != nil {
		f.t.Fatalf("New: %v", err)
	}
	f.coordinator = c

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan error, 1)
	go func() { f.done <- c.Run(ctx) }()
	f.t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(f.t, f.done, 5*time.Second, "waiting for Run to return"); err != nil {
			f.t.Errorf("Run returned %v", err)
		}
	})
}

func (f *fixture) backlog(roomID ref.RoomID, payload eventcodec.Payload) schema.RoomEvent {
	f.t.Helper()
	return f.memory.Backlog(f.event(roomID, payload))
}

func (f *fixture) event(roomID ref.RoomID, payload eventcodec.Payload) schema.RoomEvent {
	f.t.Helper()
	envelope, err := eventcodec.Encode(payload)
	if err != nil {
		f.t.Fatalf("Encode(%T): %v", payload, err)
	}
	return schema.RoomEvent{RoomID: roomID, Sender: f.peer, Type: envelope.Type, Content: envelope.Content}
}

func (f *fixture) waitLive(roomID ref.RoomID) {
	f.t.Helper()
	eventually(f.t, "room "+roomID.String()+" to go live", func() bool {
		return f.coordinator.RoomState(roomID) == dispatch.Live
	})
}

func (f *fixture) sentMarkers() []eventcodec.SyncMarker {
	f.t.Helper()
	var markers []eventcodec.SyncMarker
	for _, event := range f.memory.Sent() {
		decoded, err := eventcodec.Decode(event)
		if err != nil {
			f.t.Fatalf("Decode sent event: %v", err)
		}
		if marker, ok := decoded.Payload.(eventcodec.SyncMarker); ok {
			markers = append(markers, marker)
		}
	}
	return markers
}

func eventually(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartAppliesHistoryAndLeavesDraftSyncRooms(t *testing.T) {
	f := newFixture(t)
	walletRoom := testutil.RoomID("wallet")
	draft := testutil.RoomID("draft")
	f.memory.AddRoom(walletRoom, "Family vault")
	f.memory.AddRoom(draft, schema.TagSync)
	f.backlog(walletRoom, walletW1)
	f.start()

	f.waitLive(walletRoom)
	if _, ok := f.wallets.Get(walletRoom); !ok {
		t.Fatal("wallet room state missing after start")
	}
	eventually(t, "draft room to be left", func() bool {
		rooms, err := f.memory.ListRooms(context.Background())
		return err == nil && len(rooms) == 1
	})
	if got := promtest.ToFloat64(f.metrics.DraftsCleaned); got != 1 {
		t.Errorf("drafts cleaned = %v, want 1", got)
	}
	for _, roomID := range f.coordinator.Rooms() {
		if roomID == draft {
			t.Error("draft room has a running task")
		}
	}
}

func TestTaggedSyncRoomIsNotADraft(t *testing.T) {
	tests := []struct {
		name string
		room string
		tags []string
		want bool
	}{
		{name: "untagged sync name", room: schema.TagSync, want: true},
		{name: "tagged sync room", room: schema.TagSync, tags: []string{schema.TagSync}},
		{name: "other tag", room: schema.TagSync, tags: []string{"m.favourite"}},
		{name: "ordinary room", room: "Family vault"},
		{name: "unnamed room", room: ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := coordinator.IsDraftSyncRoom(test.room, test.tags); got != test.want {
				t.Errorf("IsDraftSyncRoom(%q, %v) = %v, want %v", test.room, test.tags, got, test.want)
			}
		})
	}
}

func TestNewRoomsStartAndLeftRoomsAreDropped(t *testing.T) {
	f := newFixture(t)
	f.start()

	joined := testutil.RoomID("joined")
	f.memory.AddRoom(joined, "Shared vault")
	f.memory.Append(f.event(joined, walletW1))
	eventually(t, "wallet from newly joined room", func() bool {
		_, ok := f.wallets.Get(joined)
		return ok
	})
	f.waitLive(joined)

	if err := f.memory.LeaveRoom(context.Background(), joined, ""); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	eventually(t, "left room to be dropped", func() bool {
		_, ok := f.wallets.Get(joined)
		return !ok && len(f.coordinator.Rooms()) == 0
	})
	if count, _ := f.handled.Count(context.Background(), joined); count != 0 {
		t.Errorf("handled records after leave = %d, want 0", count)
	}
}

func TestDeferredEventIsMarkedAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	room := testutil.RoomID("orphan")
	f.memory.AddRoom(room, "Orphan")
	orphan := f.backlog(room, eventcodec.TransactionState{
		WalletID:    "W1",
		InitEventID: ref.MustParseEventID("$E1"),
		Status:      schema.TransactionPending,
		Signers:     map[string]bool{"A": true},
	})
	f.start()

	eventually(t, "orphan transaction to be marked", func() bool {
		seen, _ := f.handled.Has(context.Background(), room, orphan.EventID)
		return seen
	})
	if got := promtest.ToFloat64(f.metrics.Backfills.WithLabelValues(syncmetrics.BackfillInconsistent)); got != 1 {
		t.Errorf("inconsistent backfills = %v, want 1", got)
	}
	if _, ok := f.wallets.Get(room); ok {
		t.Error("orphan transaction created wallet state")
	}
}

func TestDeferredEventAppliesAfterFullBackfill(t *testing.T) {
	f := newFixture(t)
	room := testutil.RoomID("wallet")
	f.memory.AddRoom(room, "Family vault")
	f.backlog(room, walletW1)
	initEvent := ref.MustParseEventID("$E1")
	f.backlog(room, eventcodec.TransactionState{
		WalletID:    "W1",
		InitEventID: initEvent,
		Status:      schema.TransactionPending,
		Signers:     map[string]bool{"A": true},
	})
	// Resume past the unrecorded wallet event.
	cursors := transport.NewMemoryCursors()
	if err := cursors.Save(context.Background(), room, "1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c, err := coordinator.New(coordinator.Config{
		Transport: f.memory,
		Live:      f.memory,
		Handled:   f.handled,
		Wallets:   f.wallets,
		Contacts:  contact.NewBook(f.local, nil),
		Cursors:   cursors,
		Metrics:   f.metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run to return")
	}()

	eventually(t, "deferred transaction to apply", func() bool {
		state, ok := f.wallets.Get(room)
		return ok && len(state.PendingTransactions) == 1
	})
	snapshot := f.wallets.PendingTransactions(room)
	if len(snapshot) != 1 || snapshot[0].InitEventID != initEvent {
		t.Errorf("pending = %+v, want %s", snapshot, initEvent)
	}
}

func TestRoomWithoutRestoredStateIsReplayed(t *testing.T) {
	f := newFixture(t)
	room := testutil.RoomID("wallet")
	f.memory.AddRoom(room, "Family vault")
	walletEvent := f.backlog(room, walletW1)
	// Handled records from an earlier session whose snapshot was lost.
	if err := f.handled.MarkHandled(context.Background(), room, walletEvent.EventID); err != nil {
		t.Fatalf("MarkHandled: %v", err)
	}
	f.start()
	f.waitLive(room)

	if _, ok := f.wallets.Get(room); !ok {
		t.Fatal("wallet not rebuilt from history")
	}
	if seen, _ := f.handled.Has(context.Background(), room, walletEvent.EventID); !seen {
		t.Error("replayed wallet event not marked handled again")
	}
}

func TestReconnectBackfillsQuietRooms(t *testing.T) {
	f := newFixture(t)
	room := testutil.RoomID("wallet")
	f.memory.AddRoom(room, "Family vault")
	f.backlog(room, eventcodec.TextMessage{MsgType: schema.MsgTypeText, Body: "hi"})
	f.start()
	f.waitLive(room)

	f.fakeClock.Advance(time.Minute)
	f.memory.SetConnected(false)
	f.backlog(room, walletW1)
	f.fakeClock.Advance(time.Minute)
	f.memory.SetConnected(true)

	eventually(t, "reconnect backfill", func() bool {
		_, ok := f.wallets.Get(room)
		return ok
	})
	if got := promtest.ToFloat64(f.metrics.Backfills.WithLabelValues(syncmetrics.BackfillReconnect)); got != 1 {
		t.Errorf("reconnect backfills = %v, want 1", got)
	}
	if got := promtest.ToFloat64(f.metrics.Connected); got != 1 {
		t.Errorf("connected gauge = %v, want 1", got)
	}
}

func TestRepublishSendsMarkerWhenDigestDiffers(t *testing.T) {
	f := newFixture(t)
	syncRoom := testutil.RoomID("sync")
	f.memory.AddRoom(syncRoom, "Sync", schema.TagSync)
	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v1")})
	f.start()
	f.waitLive(syncRoom)

	ctx := context.Background()
	if err := f.coordinator.Republish(ctx); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	markers := f.sentMarkers()
	if len(markers) != 1 {
		t.Fatalf("sent %d markers, want 1", len(markers))
	}
	if markers[0].Digest != coordinator.Digest([]byte("v1")) || markers[0].Sequence != 1 {
		t.Errorf("marker = %+v", markers[0])
	}

	// Acknowledged state is not republished.
	if err := f.coordinator.Republish(ctx); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	if got := len(f.sentMarkers()); got != 1 {
		t.Fatalf("sent %d markers after unchanged republish, want 1", got)
	}

	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v2")})
	if err := f.coordinator.Republish(ctx); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	markers = f.sentMarkers()
	if len(markers) != 2 || markers[1].Sequence != 2 {
		t.Fatalf("markers after change = %+v, want a second with sequence 2", markers)
	}
	if got := promtest.ToFloat64(f.metrics.SyncMarkers); got != 2 {
		t.Errorf("sync markers metric = %v, want 2", got)
	}
}

func TestStuckRepublishDoesNotStallLiveRooms(t *testing.T) {
	f := newFixture(t)
	f.fakeTimers = true
	f.retry = outbound.RetryPolicy{
		MaxAttempts: 5,
		Backoff:     transport.Backoff{Initial: 24 * time.Hour, Max: 24 * time.Hour},
	}
	syncRoom := testutil.RoomID("sync")
	walletRoom := testutil.RoomID("wallet")
	f.memory.AddRoom(syncRoom, "Sync", schema.TagSync)
	f.memory.AddRoom(walletRoom, "Family vault")
	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v1")})
	f.start()
	f.waitLive(syncRoom)
	f.waitLive(walletRoom)

	f.memory.FailSends(errors.New("homeserver unavailable"))
	// The republish ticker is the only timer until a send backs off.
	f.fakeClock.BlockUntil(1)
	f.fakeClock.Advance(time.Hour)
	f.fakeClock.BlockUntil(2)

	f.memory.Append(f.event(walletRoom, walletW1))
	eventually(t, "live wallet event while republish backs off", func() bool {
		_, ok := f.wallets.Get(walletRoom)
		return ok
	})
	if got := len(f.sentMarkers()); got != 0 {
		t.Errorf("sent %d markers through a failing transport", got)
	}
}

func TestRepublishHonorsMarkersFromHistory(t *testing.T) {
	f := newFixture(t)
	syncRoom := testutil.RoomID("sync")
	f.memory.AddRoom(syncRoom, "Sync", schema.TagSync)
	f.backlog(syncRoom, eventcodec.SyncMarker{Scope: "wallet", WalletID: "W1", Digest: coordinator.Digest([]byte("v1")), Sequence: 7})
	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v1")})
	f.start()
	f.waitLive(syncRoom)

	if digest, ok := f.coordinator.AcknowledgedDigest("wallet", "W1"); !ok || digest != coordinator.Digest([]byte("v1")) {
		t.Fatalf("AcknowledgedDigest = %q, %v", digest, ok)
	}
	if err := f.coordinator.Republish(context.Background()); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	if got := len(f.sentMarkers()); got != 0 {
		t.Fatalf("sent %d markers for acknowledged state, want 0", got)
	}

	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v2")})
	if err := f.coordinator.Republish(context.Background()); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	markers := f.sentMarkers()
	if len(markers) != 1 || markers[0].Sequence != 8 {
		t.Fatalf("markers = %+v, want one with sequence 8", markers)
	}
}

func TestSyncRoomPrefersRoomWithSyncTraffic(t *testing.T) {
	f := newFixture(t)
	quiet := ref.MustParseRoomID("!a-quiet:test.local")
	busy := ref.MustParseRoomID("!b-busy:test.local")
	f.memory.AddRoom(quiet, "Sync", schema.TagSync)
	f.memory.AddRoom(busy, "Sync", schema.TagSync)
	f.backlog(busy, eventcodec.ErrorReport{Code: "E_SYNC", Message: "out of date"})
	f.start()
	f.waitLive(quiet)
	f.waitLive(busy)

	syncRoom, ok := f.coordinator.SyncRoom()
	if !ok || syncRoom != busy {
		t.Errorf("SyncRoom = %s, %v; want %s", syncRoom, ok, busy)
	}
	notice := testutil.RequireReceive(t, f.notices, 5*time.Second, "waiting for notice")
	if notice.RoomID != busy || notice.Code != "E_SYNC" {
		t.Errorf("notice = %+v", notice)
	}
}

func TestNoSyncRoomSkipsRepublish(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPending(engine.PendingState{WalletID: "W1", Scope: "wallet", Payload: []byte("v1")})
	f.start()
	if _, ok := f.coordinator.SyncRoom(); ok {
		t.Fatal("SyncRoom found a room with none tagged")
	}
	if err := f.coordinator.Republish(context.Background()); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	if got := len(f.memory.Sent()); got != 0 {
		t.Errorf("sent %d events without a sync room", got)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := coordinator.New(coordinator.Config{}); err == nil {
		t.Fatal("New accepted an empty config")
	}
}

func TestDigestIsStableAndDistinct(t *testing.T) {
	first := coordinator.Digest([]byte("state"))
	if first != coordinator.Digest([]byte("state")) {
		t.Error("digest of the same payload changed")
	}
	if first == coordinator.Digest([]byte("other")) {
		t.Error("different payloads share a digest")
	}
	if len(first) != 64 {
		t.Errorf("digest length = %d, want 64 hex characters", len(first))
	}
}
