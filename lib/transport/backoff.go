// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"

	"github.com/bureau-foundation/walletsync/lib/clock"
)

// Backoff is an exponential retry delay: Initial after the first
// failure, doubling per attempt, capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when a Backoff is left zero.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		b = DefaultBackoff
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	delay := b.Initial
	for range attempt - 1 {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	return delay
}

// Wait blocks for the delay of attempt on c. Returns ctx.Err() if ctx
// ends first.
func (b Backoff) Wait(ctx context.Context, c clock.Clock, attempt int) error {
	select {
	case <-c.After(b.Delay(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
