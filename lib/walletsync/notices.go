// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/walletsync/lib/dispatch"
)

// noticeBuffer is the per-subscriber queue depth. A subscriber that
// falls further behind loses notices.
const noticeBuffer = 64

// noticeFanout delivers every notice to every subscriber. Unlike the
// latest-value watchers, notices are discrete events, so each
// subscriber gets its own queue.
type noticeFanout struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[chan dispatch.Notice]struct{}
}

func newNoticeFanout(logger *slog.Logger) *noticeFanout {
	return &noticeFanout{logger: logger, subscribers: make(map[chan dispatch.Notice]struct{})}
}

func (f *noticeFanout) subscribe(ctx context.Context) <-chan dispatch.Notice {
	channel := make(chan dispatch.Notice, noticeBuffer)
	f.mu.Lock()
	f.subscribers[channel] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subscribers, channel)
		close(channel)
		f.mu.Unlock()
	}()
	return channel
}

// publish never blocks.
func (f *noticeFanout) publish(notice dispatch.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for channel := range f.subscribers {
		select {
		case channel <- notice:
		default:
			f.logger.Warn("notice subscriber is behind, dropping notice",
				"room_id", notice.RoomID.String(),
				"event_id", notice.EventID.String(),
				"code", notice.Code,
			)
		}
	}
}
