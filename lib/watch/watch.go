// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch fans out state changes to subscribers keyed by an
// identifier (a room, a contact peer).
//
// Subscribers see the latest value, not every value: each subscriber
// channel holds at most one pending update, and a publish that finds it
// full replaces the stale update with the new one. Publishers never
// block, so a slow observer cannot stall the dispatcher that mutates
// state. Values are full snapshots, so skipping intermediate ones loses
// nothing.
package watch

import (
	"context"
	"sync"
)

// Hub is a keyed latest-value broadcaster. The zero value is not
// usable; call New.
type Hub[K comparable, V any] struct {
	mu          sync.Mutex
	subscribers map[K][]*subscriber[V]
}

type subscriber[V any] struct {
	channel chan V
}

// New returns an empty Hub.
func New[K comparable, V any]() *Hub[K, V] {
	return &Hub[K, V]{subscribers: make(map[K][]*subscriber[V])}
}

// Subscribe returns a channel of updates for key. When initial is
// non-nil it is delivered first. The channel is closed once ctx is
// done.
func (h *Hub[K, V]) Subscribe(ctx context.Context, key K, initial func() (V, bool)) <-chan V {
	sub := &subscriber[V]{channel: make(chan V, 1)}

	h.mu.Lock()
	if initial != nil {
		if value, ok := initial(); ok {
			sub.channel <- value
		}
	}
	h.subscribers[key] = append(h.subscribers[key], sub)
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(key, sub)
		close(sub.channel)
	}()
	return sub.channel
}

// Publish delivers value to every subscriber of key without blocking.
func (h *Hub[K, V]) Publish(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers[key] {
		select {
		case sub.channel <- value:
			continue
		default:
		}
		// Full: drop the stale update and retry. Only Publish sends,
		// and it holds the lock, so the second send cannot fail.
		select {
		case <-sub.channel:
		default:
		}
		sub.channel <- value
	}
}

// Len returns the number of subscribers for key.
func (h *Hub[K, V]) Len(key K) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[key])
}

func (h *Hub[K, V]) removeLocked(key K, target *subscriber[V]) {
	subscribers := h.subscribers[key]
	for i, existing := range subscribers {
		if existing == target {
			subscribers = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
	if len(subscribers) == 0 {
		delete(h.subscribers, key)
	} else {
		h.subscribers[key] = subscribers
	}
}
