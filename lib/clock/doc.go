// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for everything in the bridge that
// waits: send retries, /sync reconnect backoff, periodic republishing,
// and the timestamps written into wallet and contact state.
//
// Production code takes a [Clock] and is given [Real]. Tests construct
// [NewFake] and drive time with [Fake.Advance]. Goroutines that wait on
// a fake clock register a waiter; [Fake.BlockUntil] lets a test wait
// for that registration before advancing, so no test sleeps.
//
//	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go sender.SendWithRetry(ctx, room, payload, policy)
//	fake.BlockUntil(1)          // first backoff registered
//	fake.Advance(time.Second)   // release it
package clock
