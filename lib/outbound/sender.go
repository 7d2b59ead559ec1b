// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package outbound posts domain events to rooms.
//
// [Sender.Send] encodes a payload and blocks until the transport
// acknowledges or fails; it never retries and never dedups. With
// ignoreErrors set a transport failure is swallowed: the zero event ID
// and a nil error come back. The wallet engine reaches the same path
// through [Sender.SendEvent], which implements engine.EventSink.
//
// Mandatory sends that must survive transient failures go through
// [Sender.SendWithRetry], which applies the caller-side backoff policy
// on the injected clock.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/walletsync/lib/clock"
	"github.com/bureau-foundation/walletsync/lib/engine"
	"github.com/bureau-foundation/walletsync/lib/eventcodec"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/transport"
)

// Poster is the transport operation the sender needs.
type Poster interface {
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any) (ref.EventID, error)
}

// RetryPolicy bounds SendWithRetry.
type RetryPolicy struct {
	// MaxAttempts includes the first try. Defaults to 5.
	MaxAttempts int
	Backoff     transport.Backoff
}

// Config configures a Sender. Transport is required.
type Config struct {
	Transport Poster

	// Limiter paces sends across all rooms. Nil sends unpaced.
	Limiter *rate.Limiter

	// Clock drives retry delays. Defaults to the real clock.
	Clock clock.Clock

	Retry   RetryPolicy
	Metrics *syncmetrics.Metrics
	Logger  *slog.Logger
}

// Sender posts events. Safe for concurrent use; sends run on the
// caller's goroutine.
type Sender struct {
	transport Poster
	limiter   *rate.Limiter
	clock     clock.Clock
	retry     RetryPolicy
	metrics   *syncmetrics.Metrics
	logger    *slog.Logger
}

var _ engine.EventSink = (*Sender)(nil)

// New creates a Sender.
func New(config Config) *Sender {
	if config.Transport == nil {
		panic("outbound: Config.Transport is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = 5
	}
	return &Sender{
		transport: config.Transport,
		limiter:   config.Limiter,
		clock:     config.Clock,
		retry:     config.Retry,
		metrics:   config.Metrics,
		logger:    config.Logger,
	}
}

// Send encodes payload and posts it to roomID. Encoding failures are
// always returned; ignoreErrors only covers transport failures.
func (s *Sender) Send(ctx context.Context, roomID ref.RoomID, payload eventcodec.Payload, ignoreErrors bool) (ref.EventID, error) {
	envelope, err := eventcodec.Encode(payload)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("outbound: %w", err)
	}
	return s.SendEvent(ctx, roomID, envelope.Type, envelope.Content, ignoreErrors)
}

// SendEvent posts pre-encoded content. It is the engine's outbound
// hook.
func (s *Sender) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any, ignoreErrors bool) (ref.EventID, error) {
	eventID, err := s.post(ctx, roomID, eventType, content)
	if err == nil {
		s.metrics.Send(eventType.String(), syncmetrics.SendDelivered)
		return eventID, nil
	}
	if ignoreErrors {
		s.metrics.Send(eventType.String(), syncmetrics.SendSwallowed)
		s.logger.Debug("best-effort send failed",
			"room_id", roomID.String(),
			"event_type", eventType.String(),
			"error", err,
		)
		return ref.EventID{}, nil
	}
	s.metrics.Send(eventType.String(), syncmetrics.SendFailed)
	return ref.EventID{}, err
}

// post sends once. Every failure comes back as a *syncerr.TransportError.
func (s *Sender) post(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content map[string]any) (ref.EventID, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return ref.EventID{}, &syncerr.TransportError{Op: "send", RoomID: roomID, Err: err}
		}
	}
	eventID, err := s.transport.SendEvent(ctx, roomID, eventType, content)
	if err != nil {
		var transportErr *syncerr.TransportError
		if errors.As(err, &transportErr) {
			return ref.EventID{}, err
		}
		return ref.EventID{}, &syncerr.TransportError{Op: "send", RoomID: roomID, Err: err}
	}
	return eventID, nil
}

// retryAfter is implemented by transport errors that carry a
// server-requested delay (messaging.MatrixError).
type retryAfter interface {
	RetryAfter() time.Duration
}

// SendWithRetry sends payload, retrying retryable transport failures
// with exponential backoff up to the policy's attempt limit. A
// server-requested delay longer than the backoff step is honored.
func (s *Sender) SendWithRetry(ctx context.Context, roomID ref.RoomID, payload eventcodec.Payload) (ref.EventID, error) {
	envelope, err := eventcodec.Encode(payload)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("outbound: %w", err)
	}
	for attempt := 1; ; attempt++ {
		eventID, err := s.SendEvent(ctx, roomID, envelope.Type, envelope.Content, false)
		if err == nil {
			return eventID, nil
		}
		if !syncerr.IsRetryable(err) || attempt >= s.retry.MaxAttempts {
			return ref.EventID{}, err
		}

		delay := s.retry.Backoff.Delay(attempt)
		var hinted retryAfter
		if errors.As(err, &hinted) && hinted.RetryAfter() > delay {
			delay = hinted.RetryAfter()
		}
		s.metrics.Retry()
		s.logger.Warn("send failed, retrying",
			"room_id", roomID.String(),
			"event_type", envelope.Type.String(),
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return ref.EventID{}, &syncerr.TransportError{Op: "send", RoomID: roomID, Err: ctx.Err()}
		}
	}
}
