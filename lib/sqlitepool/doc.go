// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// vault's durable state.
//
// It wraps zombiezen.com/go/sqlite with the pragmas a custodial ledger
// needs and a small forward-only migration runner. Callers
// [Pool.Take] a connection, do their work inside a transaction, and
// [Pool.Put] it back. Connections are not safe for concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL: a committed lock or unlock survives power
//     loss. The vault writes a handful of rows per operation, so the
//     fsync per commit is affordable.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - foreign_keys=ON: custody and ledger tables declare no foreign
//     keys today, but any added later are enforced.
//   - temp_store=MEMORY.
//
// # Migrations
//
// Config.Migrations is an ordered list of SQL scripts. Script i moves
// the database from PRAGMA user_version i to i+1. Open applies every
// script the database has not seen, each in its own transaction, so a
// database is either fully at version i or fully at i+1. Scripts are
// never edited once released; new schema goes in a new entry.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       filepath.Join(stateDir, "vault.db"),
//	    Logger:     logger,
//	    Migrations: ledger.Migrations,
//	})
package sqlitepool
