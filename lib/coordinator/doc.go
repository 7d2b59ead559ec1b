// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator runs the inbound side of one account's bridge.
//
// At start it restores persisted wallet snapshots, lists the joined
// rooms, leaves draft sync rooms, and starts a [dispatch.Room] per
// remaining room in a shared errgroup. A room that came back without
// wallet state has its handled records dropped first, so its history
// is replayed. It then routes live updates to their rooms, starts
// tasks for rooms joined later, and tears down rooms the account
// leaves. Republishing and the tag lookup of a newly joined room run as
// workers in the group, so the routing loop never waits on the network.
//
// The coordinator also owns the cross-room policy:
//
//   - Deferred transaction events get a bounded number of full
//     re-backfills of their room before they are marked handled.
//   - When the link to the server comes back, every live room that saw
//     nothing since the link went down is backfilled from its cursor.
//   - Local state the engine reports as pending is compared, by
//     digest, with the sync markers in the sync room and republished
//     when they differ.
package coordinator
