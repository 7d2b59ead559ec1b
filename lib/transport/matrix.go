// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/netutil"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/messaging"
)

// MatrixConfig configures a Matrix transport. Session is required.
type MatrixConfig struct {
	Session messaging.Session

	// Clock drives the sync retry backoff. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// PageSize is the /messages limit per history page. Defaults to 100.
	PageSize int

	// SyncTimeout is the /sync long-poll hold. Defaults to 30s.
	SyncTimeout time.Duration

	// Backoff spaces /sync retries after failures. Zero uses
	// DefaultBackoff.
	Backoff Backoff

	// Filter narrows what /sync returns.
	Filter messaging.SyncFilter
}

// Matrix is a Transport, LiveSource and Connectivity over a Matrix
// session. Live delivery starts when Run is called.
type Matrix struct {
	session     messaging.Session
	clock       clock.Clock
	logger      *slog.Logger
	pageSize    int
	syncTimeout time.Duration
	backoff     Backoff
	filter      string

	updates      chan Update
	connectivity chan ConnectivityChange
}

// NewMatrix creates the adapter.
func NewMatrix(config MatrixConfig) (*Matrix, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("transport: MatrixConfig.Session is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = 30 * time.Second
	}
	if config.Backoff.Initial <= 0 {
		config.Backoff = DefaultBackoff
	}
	return &Matrix{
		session:      config.Session,
		clock:        config.Clock,
		logger:       config.Logger,
		pageSize:     config.PageSize,
		syncTimeout:  config.SyncTimeout,
		backoff:      config.Backoff,
		filter:       config.Filter.Inline(),
		updates:      make(chan Update, 16),
		connectivity: make(chan ConnectivityChange, 4),
	}, nil
}

func (m *Matrix) LocalUser() ref.UserID { return m.session.UserID() }

func (m *Matrix) Updates() <-chan Update { return m.updates }

func (m *Matrix) Connectivity() <-chan ConnectivityChange { return m.connectivity }

func (m *Matrix) ListRooms(ctx context.Context) ([]ref.RoomID, error) {
	rooms, err := m.session.JoinedRooms(ctx)
	if err != nil {
		return nil, transportError("list", ref.RoomID{}, err)
	}
	return rooms, nil
}

// RoomName returns the m.room.name state, or "" when the room has none.
func (m *Matrix) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	content, err := messaging.GetState[schema.RoomNameContent](ctx, m.session, roomID, schema.MatrixEventTypeRoomName, "")
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return "", nil
		}
		return "", transportError("room_name", roomID, err)
	}
	return content.Name, nil
}

func (m *Matrix) RoomTags(ctx context.Context, roomID ref.RoomID) ([]string, error) {
	tags, err := m.session.RoomTags(ctx, roomID)
	if err != nil {
		return nil, transportError("room_tags", roomID, err)
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *Matrix) Timeline(roomID ref.RoomID, from Cursor) Pager {
	return &matrixPager{matrix: m, roomID: roomID, from: from}
}

func (m *Matrix) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any) (ref.EventID, error) {
	eventID, err := m.session.SendEvent(ctx, roomID, eventType, content)
	if err != nil {
		return ref.EventID{}, transportError("send", roomID, err)
	}
	return eventID, nil
}

func (m *Matrix) LeaveRoom(ctx context.Context, roomID ref.RoomID, reason string) error {
	if err := m.session.LeaveRoom(ctx, roomID, reason); err != nil {
		return transportError("leave", roomID, err)
	}
	return nil
}

type matrixPager struct {
	matrix *Matrix
	roomID ref.RoomID
	from   Cursor
	done   bool
}

func (p *matrixPager) Next(ctx context.Context) (Page, error) {
	if p.done {
		return Page{Next: p.from, Done: true}, nil
	}
	response, err := p.matrix.session.RoomMessages(ctx, p.roomID, messaging.RoomMessagesOptions{
		From:      string(p.from),
		Direction: messaging.DirectionForward,
		Limit:     p.matrix.pageSize,
	})
	if err != nil {
		return Page{}, transportError("timeline", p.roomID, err)
	}

	events := make([]schema.RoomEvent, 0, len(response.Chunk))
	for _, raw := range response.Chunk {
		if event, ok := toRoomEvent(p.roomID, raw); ok {
			events = append(events, event)
		}
	}
	// An absent end token means the server has nothing further. The
	// last from token stays valid and resumes at this page.
	if response.End != "" {
		p.from = Cursor(response.End)
	}
	p.done = response.End == "" || len(response.Chunk) == 0
	return Page{Events: events, Next: p.from, Done: p.done}, nil
}

// Run long-polls /sync until ctx ends, delivering updates and
// connectivity changes. The first failure reports the link down; the
// next success reports it up. Run closes both channels on return and
// returns nil when ctx was cancelled.
func (m *Matrix) Run(ctx context.Context) error {
	defer close(m.updates)
	defer close(m.connectivity)

	var since string
	connected := true
	failures := 0
	for {
		response, err := m.session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			SetTimeout: true,
			Timeout:    int(m.syncTimeout / time.Millisecond),
			Filter:     m.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if connected {
				connected = false
				if !m.emitConnectivity(ctx, ConnectivityChange{Connected: false, At: m.clock.Now()}) {
					return nil
				}
			}
			if closer, ok := m.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			m.logger.Warn("matrix sync failed",
				"attempt", failures,
				"retry_in", m.backoff.Delay(failures).String(),
				"error", err,
			)
			if err := m.backoff.Wait(ctx, m.clock, failures); err != nil {
				return nil
			}
			continue
		}

		if !connected {
			connected = true
			m.logger.Info("matrix sync recovered", "failed_attempts", failures)
			if !m.emitConnectivity(ctx, ConnectivityChange{Connected: true, At: m.clock.Now()}) {
				return nil
			}
		}
		failures = 0
		initial := since == ""
		since = response.NextBatch

		for _, update := range syncUpdates(response, initial) {
			select {
			case m.updates <- update:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (m *Matrix) emitConnectivity(ctx context.Context, change ConnectivityChange) bool {
	select {
	case m.connectivity <- change:
		return true
	case <-ctx.Done():
		return false
	}
}

// syncUpdates converts a /sync response to updates ordered by room ID.
// A limited timeline is a gap except on the initial sync, where the
// caller backfills every room anyway.
func syncUpdates(response *messaging.SyncResponse, initial bool) []Update {
	var updates []Update

	joined := make([]ref.RoomID, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		joined = append(joined, roomID)
	}
	slices.SortFunc(joined, compareRoomIDs)
	for _, roomID := range joined {
		room := response.Rooms.Join[roomID]
		events := make([]schema.RoomEvent, 0, len(room.Timeline.Events))
		for _, raw := range room.Timeline.Events {
			if event, ok := toRoomEvent(roomID, raw); ok {
				events = append(events, event)
			}
		}
		gap := room.Timeline.Limited && !initial
		if len(events) == 0 && !gap {
			continue
		}
		updates = append(updates, Update{RoomID: roomID, Events: events, Gap: gap})
	}

	left := make([]ref.RoomID, 0, len(response.Rooms.Leave))
	for roomID := range response.Rooms.Leave {
		left = append(left, roomID)
	}
	slices.SortFunc(left, compareRoomIDs)
	for _, roomID := range left {
		updates = append(updates, Update{RoomID: roomID, Left: true})
	}
	return updates
}

func compareRoomIDs(a, b ref.RoomID) int {
	return cmp.Compare(a.String(), b.String())
}

// toRoomEvent converts a wire event. Events without an ID (which a
// conforming server never sends in a timeline) are dropped.
func toRoomEvent(roomID ref.RoomID, raw messaging.Event) (schema.RoomEvent, bool) {
	if raw.EventID.IsZero() {
		return schema.RoomEvent{}, false
	}
	content := raw.Content
	if content == nil {
		content = map[string]any{}
	}
	return schema.RoomEvent{
		RoomID:    roomID,
		EventID:   raw.EventID,
		Sender:    raw.Sender,
		Type:      raw.Type,
		Content:   content,
		StateKey:  raw.StateKey,
		Timestamp: time.UnixMilli(raw.OriginServerTS),
	}, true
}

// transportError wraps a messaging failure. Homeserver errors are
// retryable when the server says so (rate limit, 5xx); other failures
// when the network error is transient.
func transportError(op string, roomID ref.RoomID, err error) error {
	var matrixErr *messaging.MatrixError
	retryable := false
	if errors.As(err, &matrixErr) {
		retryable = matrixErr.Temporary()
	} else {
		retryable = netutil.IsTransient(err)
	}
	return &syncerr.TransportError{Op: op, RoomID: roomID, Retryable: retryable, Err: err}
}
