// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
)

// memoryUpdateBuffer bounds the updates a Memory transport queues for a
// consumer that is not reading. Append blocks beyond it.
const memoryUpdateBuffer = 256

// MemoryConfig configures a Memory transport.
type MemoryConfig struct {
	// LocalUser is the account events sent through the transport are
	// attributed to. Required.
	LocalUser ref.UserID

	// Clock stamps events that arrive without a timestamp. Defaults to
	// the real clock.
	Clock clock.Clock

	// PageSize is the number of events per history page. Defaults to 50.
	PageSize int
}

// Memory is an in-process Transport, LiveSource and Connectivity. Rooms
// and their history are created by the test (or embedding program)
// through AddRoom, Append and Backlog.
type Memory struct {
	local    ref.UserID
	clock    clock.Clock
	pageSize int

	mu        sync.Mutex
	rooms     map[ref.RoomID]*memoryRoom
	order     []ref.RoomID
	sent      []schema.RoomEvent
	sendErr   error
	connected bool
	closed    bool
	nextEvent int

	// deliverMu orders channel sends before Close closes the channels.
	deliverMu    sync.RWMutex
	updates      chan Update
	connectivity chan ConnectivityChange
}

type memoryRoom struct {
	name   string
	tags   []string
	events []schema.RoomEvent
	left   bool
}

// NewMemory creates an empty, connected Memory transport.
func NewMemory(config MemoryConfig) *Memory {
	if config.LocalUser.IsZero() {
		panic("transport: MemoryConfig.LocalUser is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	return &Memory{
		local:        config.LocalUser,
		clock:        config.Clock,
		pageSize:     config.PageSize,
		rooms:        make(map[ref.RoomID]*memoryRoom),
		connected:    true,
		updates:      make(chan Update, memoryUpdateBuffer),
		connectivity: make(chan ConnectivityChange, memoryUpdateBuffer),
	}
}

// AddRoom joins a room with the given name and tags. Adding a room
// that exists updates its name and tags.
func (m *Memory) AddRoom(roomID ref.RoomID, name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.roomLocked(roomID)
	room.name = name
	room.tags = slices.Clone(tags)
	room.left = false
}

// Append adds event to its room's history and delivers it live. A zero
// EventID or Timestamp is filled in. Returns the stored event.
func (m *Memory) Append(event schema.RoomEvent) schema.RoomEvent {
	stored := m.store(event)
	m.publish(Update{RoomID: stored.RoomID, Events: []schema.RoomEvent{stored}})
	return stored
}

// Backlog adds event to its room's history without delivering it live,
// as if it arrived while this client was offline.
func (m *Memory) Backlog(event schema.RoomEvent) schema.RoomEvent {
	return m.store(event)
}

// Deliver pushes an update without touching history. Tests use it to
// replay events or to signal gaps.
func (m *Memory) Deliver(update Update) {
	m.publish(update)
}

// FailSends makes every following SendEvent fail with err. Pass nil to
// restore normal sends.
func (m *Memory) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Sent returns the events sent through SendEvent, in order.
func (m *Memory) Sent() []schema.RoomEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// History returns a copy of a room's stored events.
func (m *Memory) History(roomID ref.RoomID) []schema.RoomEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(room.events)
}

// SetConnected records a link transition. Setting the current state
// again is a no-op.
func (m *Memory) SetConnected(connected bool) {
	m.deliverMu.RLock()
	defer m.deliverMu.RUnlock()
	m.mu.Lock()
	if m.connected == connected || m.closed {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	change := ConnectivityChange{Connected: connected, At: m.clock.Now()}
	m.mu.Unlock()
	m.connectivity <- change
}

// Close stops live delivery. Updates and Connectivity channels are
// closed.
func (m *Memory) Close() {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.updates)
	close(m.connectivity)
}

func (m *Memory) LocalUser() ref.UserID { return m.local }

func (m *Memory) Updates() <-chan Update { return m.updates }

func (m *Memory) Connectivity() <-chan ConnectivityChange { return m.connectivity }

func (m *Memory) ListRooms(ctx context.Context) ([]ref.RoomID, error) {
	if err := m.checkConnected("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]ref.RoomID, 0, len(m.order))
	for _, roomID := range m.order {
		if !m.rooms[roomID].left {
			rooms = append(rooms, roomID)
		}
	}
	return rooms, nil
}

func (m *Memory) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return "", m.unknownRoom("room_name", roomID)
	}
	return room.name, nil
}

func (m *Memory) RoomTags(ctx context.Context, roomID ref.RoomID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, m.unknownRoom("room_tags", roomID)
	}
	return slices.Clone(room.tags), nil
}

func (m *Memory) Timeline(roomID ref.RoomID, from Cursor) Pager {
	return &memoryPager{memory: m, roomID: roomID, cursor: from}
}

func (m *Memory) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any) (ref.EventID, error) {
	if err := ctx.Err(); err != nil {
		return ref.EventID{}, &syncerr.TransportError{Op: "send", RoomID: roomID, Retryable: true, Err: err}
	}
	if err := m.checkConnected("send"); err != nil {
		return ref.EventID{}, err
	}
	m.mu.Lock()
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return ref.EventID{}, &syncerr.TransportError{Op: "send", RoomID: roomID, Retryable: true, Err: err}
	}
	room, ok := m.rooms[roomID]
	if !ok || room.left {
		m.mu.Unlock()
		return ref.EventID{}, m.unknownRoom("send", roomID)
	}
	m.mu.Unlock()

	stored := m.store(schema.RoomEvent{
		RoomID:  roomID,
		Sender:  m.local,
		Type:    eventType,
		Content: content,
	})
	m.mu.Lock()
	m.sent = append(m.sent, stored)
	m.mu.Unlock()
	m.publish(Update{RoomID: roomID, Events: []schema.RoomEvent{stored}})
	return stored.EventID, nil
}

func (m *Memory) LeaveRoom(ctx context.Context, roomID ref.RoomID, _ string) error {
	if err := m.checkConnected("leave"); err != nil {
		return err
	}
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return m.unknownRoom("leave", roomID)
	}
	room.left = true
	m.mu.Unlock()
	m.publish(Update{RoomID: roomID, Left: true})
	return nil
}

func (m *Memory) store(event schema.RoomEvent) schema.RoomEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.EventID.IsZero() {
		m.nextEvent++
		event.EventID = ref.MustParseEventID(fmt.Sprintf("$mem-%d", m.nextEvent))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clock.Now()
	}
	room := m.roomLocked(event.RoomID)
	room.events = append(room.events, event)
	return event
}

func (m *Memory) publish(update Update) {
	m.deliverMu.RLock()
	defer m.deliverMu.RUnlock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.updates <- update
}

func (m *Memory) roomLocked(roomID ref.RoomID) *memoryRoom {
	room, ok := m.rooms[roomID]
	if !ok {
		room = &memoryRoom{}
		m.rooms[roomID] = room
		m.order = append(m.order, roomID)
	}
	return room
}

func (m *Memory) checkConnected(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return &syncerr.TransportError{Op: op, Retryable: true, Err: fmt.Errorf("transport: disconnected")}
	}
	return nil
}

func (m *Memory) unknownRoom(op string, roomID ref.RoomID) error {
	return &syncerr.TransportError{Op: op, RoomID: roomID, Err: fmt.Errorf("transport: not joined to room")}
}

type memoryPager struct {
	memory *Memory
	roomID ref.RoomID
	cursor Cursor
}

func (p *memoryPager) Next(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, &syncerr.TransportError{Op: "timeline", RoomID: p.roomID, Retryable: true, Err: err}
	}
	if err := p.memory.checkConnected("timeline"); err != nil {
		return Page{}, err
	}
	position := 0
	if p.cursor != "" {
		parsed, err := strconv.Atoi(string(p.cursor))
		if err != nil || parsed < 0 {
			return Page{}, &syncerr.TransportError{Op: "timeline", RoomID: p.roomID, Err: fmt.Errorf("transport: invalid cursor %q", p.cursor)}
		}
		position = parsed
	}

	p.memory.mu.Lock()
	room, ok := p.memory.rooms[p.roomID]
	if !ok {
		p.memory.mu.Unlock()
		return Page{}, p.memory.unknownRoom("timeline", p.roomID)
	}
	end := min(position+p.memory.pageSize, len(room.events))
	position = min(position, end)
	events := slices.Clone(room.events[position:end])
	done := end >= len(room.events)
	p.memory.mu.Unlock()

	p.cursor = Cursor(strconv.Itoa(end))
	return Page{Events: events, Next: p.cursor, Done: done}, nil
}
