// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
)

// SyncFilter configures what the bridge's /sync loop receives. The
// zero value means every timeline and state event in every joined room,
// plus m.tag room account data.
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event types.
	// An empty slice means all timeline types.
	TimelineTypes []string `json:"timeline_types,omitempty"`

	// TimelineLimit caps the number of timeline events per room per
	// /sync response. Zero means the server default. When the cap is
	// hit the server reports a limited timeline and the gap is filled
	// from /messages.
	TimelineLimit int `json:"timeline_limit,omitempty"`
}

// Inline returns the filter as the inline JSON string /sync accepts in
// its filter parameter. Presence and global account data are always
// suppressed; room account data is narrowed to m.tag.
func (f SyncFilter) Inline() string {
	roomFilter := map[string]any{
		"account_data": map[string]any{"types": []string{"m.tag"}},
	}

	timeline := map[string]any{}
	if len(f.TimelineTypes) > 0 {
		timeline["types"] = f.TimelineTypes
	}
	if f.TimelineLimit > 0 {
		timeline["limit"] = f.TimelineLimit
	}
	if len(timeline) > 0 {
		roomFilter["timeline"] = timeline
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}
