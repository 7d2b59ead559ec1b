// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncmetrics holds the prometheus collectors the bridge
// updates. A nil *Metrics is valid and records nothing, so components
// take one optionally.
package syncmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletsync"

// Inbound event outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnrecognized = "unrecognized"
	OutcomeDecodeError  = "decode_error"
	OutcomeApplyError   = "apply_error"
	OutcomeDeferred     = "deferred"
	OutcomeNotPersisted = "not_persisted"
)

// Send outcomes.
const (
	SendDelivered = "delivered"
	SendFailed    = "failed"
	SendSwallowed = "swallowed"
)

// Backfill reasons.
const (
	BackfillInitial      = "initial"
	BackfillInconsistent = "inconsistent"
	BackfillReconnect    = "reconnect"
	BackfillGap          = "gap"
)

// Metrics is the set of collectors.
type Metrics struct {
	Events        *prometheus.CounterVec
	Sends         *prometheus.CounterVec
	SendRetries   prometheus.Counter
	Backfills     *prometheus.CounterVec
	Rooms         *prometheus.GaugeVec
	SyncMarkers   prometheus.Counter
	Connected     prometheus.Gauge
	PendingTxs    prometheus.Gauge
	DraftsCleaned prometheus.Counter
}

// New creates the collectors and registers them with registerer. A nil
// registerer leaves them unregistered, which tests use to read values
// without touching the global registry.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound room events by decoded kind and outcome.",
		}, []string{"kind", "outcome"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sends_total",
			Help:      "Outbound event sends by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		SendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_send_retries_total",
			Help:      "Retries of mandatory sends after a retryable failure.",
		}),
		Backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfills_total",
			Help:      "Room history backfills by reason.",
		}, []string{"reason"}),
		Rooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with a running dispatcher, by dispatcher state.",
		}, []string{"state"}),
		SyncMarkers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_markers_published_total",
			Help:      "Sync markers republished for unacknowledged local state.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_connected",
			Help:      "1 while the chat transport is connected.",
		}),
		PendingTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Open transactions across all rooms.",
		}),
		DraftsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_sync_rooms_left_total",
			Help:      "Untagged draft sync rooms left at session start.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Events, m.Sends, m.SendRetries, m.Backfills, m.Rooms,
			m.SyncMarkers, m.Connected, m.PendingTxs, m.DraftsCleaned)
	}
	return m
}

// Event counts one inbound event.
func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

// Send counts one outbound send.
func (m *Metrics) Send(eventType, outcome string) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(eventType, outcome).Inc()
}

// Retry counts one retry of a mandatory send.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.SendRetries.Inc()
}

// Backfill counts one backfill.
func (m *Metrics) Backfill(reason string) {
	if m == nil {
		return
	}
	m.Backfills.WithLabelValues(reason).Inc()
}

// RoomState moves one room from one dispatcher state to another. Pass
// "" for from when the room starts and for to when it stops.
func (m *Metrics) RoomState(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.Rooms.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.Rooms.WithLabelValues(to).Inc()
	}
}

// SyncMarker counts one republished sync marker.
func (m *Metrics) SyncMarker() {
	if m == nil {
		return
	}
	m.SyncMarkers.Inc()
}

// SetConnected records the transport link state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// SetPendingTransactions records the open transaction count.
func (m *Metrics) SetPendingTransactions(count int) {
	if m == nil {
		return
	}
	m.PendingTxs.Set(float64(count))
}

// DraftCleaned counts one draft sync room left.
func (m *Metrics) DraftCleaned() {
	if m == nil {
		return
	}
	m.DraftsCleaned.Inc()
}
