// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// walletsync-daemon runs the wallet event bridge for one Matrix account.
//
// It reads a single config file (--config, or WALLETSYNC_CONFIG), loads
// the access token from homeserver.access_token_file, opens the state
// database, and runs a walletsync.Session over the Matrix transport
// until SIGINT or SIGTERM. When metrics.listen is set, Prometheus
// metrics are served on /metrics.
package main
