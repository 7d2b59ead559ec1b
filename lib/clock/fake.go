// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake is a Clock whose time moves only on Advance. Safe for
// concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration // non-zero for tickers
	stopped  bool
}

// NewFake returns a Fake set to initial.
func NewFake(initial time.Time) *Fake {
	fake := &Fake{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.now
		return channel
	}
	f.addLocked(&waiter{deadline: f.now.Add(d), channel: channel})
	return channel
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	channel := make(chan time.Time, 1)
	tick := &waiter{deadline: f.now.Add(d), channel: channel, interval: d}
	f.addLocked(tick)
	return &Ticker{
		C: channel,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			tick.stopped = true
			f.changed.Broadcast()
		},
	}
}

func (f *Fake) addLocked(w *waiter) {
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()
}

// Advance moves time forward by d and fires, in deadline order, every
// waiter whose deadline has passed. A ticker spanning several intervals
// fires once per interval, subject to its capacity-1 channel.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)

	for {
		var due *waiter
		for _, w := range f.waiters {
			if w.stopped || w.deadline.After(f.now) {
				continue
			}
			if due == nil || w.deadline.Before(due.deadline) {
				due = w
			}
		}
		if due == nil {
			break
		}
		select {
		case due.channel <- f.now:
		default:
		}
		if due.interval > 0 {
			due.deadline = due.deadline.Add(due.interval)
		} else {
			due.stopped = true
		}
	}
	f.waiters = slices.DeleteFunc(f.waiters, func(w *waiter) bool { return w.stopped })
	f.changed.Broadcast()
}

// BlockUntil waits until at least n waiters are pending.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}

// Pending returns the number of registered, unfired waiters.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

func (f *Fake) pendingLocked() int {
	count := 0
	for _, w := range f.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}
