// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contact interprets contact lifecycle events into the
// relationship between the local account and each peer.
//
// [Transition] is the pure table:
//
//	current                        event                                    direction  next
//	None                           request                                  outbound   RequestSent
//	None                           request                                  inbound    RequestReceived
//	RequestSent, RequestReceived   request accepted or invitation accepted  either     Accepted
//	RequestSent                    withdraw invitation                      outbound   Withdrawn
//	Accepted                       withdraw invitation                      either     Withdrawn
//	Withdrawn                      request                                  either     RequestSent/RequestReceived by direction
//
// Any other combination leaves the state unchanged. That is never an
// error: lifecycle events from several devices arrive out of order.
//
// [Book] holds one relationship per peer and is the only writer of
// relationship state. Beyond the table it remembers an acceptance seen
// while the relationship is still None, so that a request delivered
// after its acceptance still converges to Accepted.
package contact
