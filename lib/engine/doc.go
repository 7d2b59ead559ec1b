// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the boundary to the native wallet engine.
//
// The engine owns keys, signing, and descriptor semantics. The bridge
// asks it three things: how many signatures a wallet needs
// ([ThresholdLookup]), what a descriptor says ([DescriptorParser]),
// and which local state still has to be published to the sync room
// ([PendingPublisher]). In the other direction the engine pushes
// outbound events through an [EventSink] that the bridge implements, so
// the engine never depends on the transport.
//
// [Static] is an in-process engine backed by maps, used by tests and by
// the daemon when no native engine is linked. [ParseDescriptor] is a
// reference parser for the multisig descriptor forms collaborative
// wallets use.
package engine
