// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// lockvaultd serves one vault's lock ledger on a Unix socket.
//
// It loads its YAML configuration (--config or LOCKVAULT_CONFIG), takes
// an exclusive flock on the state directory so that only one daemon
// writes the vault database, applies the configured genesis balances
// the first time the database is created, and then answers socket
// requests until SIGINT or SIGTERM.
//
// Every action except "status" requires a caller token (see
// lib/calltoken). The token's subject is the caller the ledger sees:
// the delegate for lock and unlock, the owner for rage-quit and
// external-call. Failed requests carry a stable "kind" string
// (ledger.Kind) next to the human-readable error.
//
// Delegates with a rage-quit hook are configured as socket paths; the
// daemon calls the hook service's "on-rage-quit" action after the
// release commits.
package main
