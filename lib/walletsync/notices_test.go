// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletsync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/walletsync/lib/dispatch"
	"github.com/bureau-foundation/walletsync/lib/testutil"
)

func TestNoticeFanoutDropsForSlowSubscriber(t *testing.T) {
	fanout := newNoticeFanout(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := fanout.subscribe(ctx)

	for i := range noticeBuffer + 10 {
		fanout.publish(dispatch.Notice{Code: "c", Message: string(rune('a' + i%26))})
	}
	for range noticeBuffer {
		testutil.RequireReceive(t, slow, time.Second, "buffered notice")
	}
	testutil.RequireNoReceive(t, slow, 10*time.Millisecond, "notice beyond buffer")

	cancel()
	testutil.RequireClosed(t, slow, time.Second, "channel after cancel")
	fanout.publish(dispatch.Notice{Code: "after"})
}
