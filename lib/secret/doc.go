// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the homeserver access token outside the Go heap.
//
// A [Token] is backed by an anonymous mmap region that is locked into
// RAM (mlock) and excluded from core dumps (MADV_DONTDUMP). Close zeros
// the region and unmaps it. The garbage collector never sees the
// backing memory and so never copies it.
//
// The daemon loads the token with [Load] from the file named by the
// homeserver.access_token_file config key. "-" reads one line from
// stdin, prompting with echo disabled when stdin is a terminal.
// [Token.Bearer] produces a heap copy for the Authorization header;
// that copy is the only one that outlives a request.
package secret
