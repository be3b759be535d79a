// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Schema creates the ledger tables. The seq column orders the lock set
// by insertion.
const Schema = `
CREATE TABLE locks (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	lock_key   BLOB NOT NULL UNIQUE,
	delegate   TEXT NOT NULL,
	token      TEXT NOT NULL,
	balance    INTEGER NOT NULL CHECK (balance >= 0),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX locks_by_token ON locks (token);

CREATE TABLE vault_state (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	vault TEXT NOT NULL,
	nonce INTEGER NOT NULL CHECK (nonce >= 0)
);
`

// OwnerNonceSchema adds the counter that orders owner-signed rage
// quits and external calls. It is separate from the sequence number,
// which only lock and unlock advance.
const OwnerNonceSchema = `
ALTER TABLE vault_state ADD COLUMN owner_nonce INTEGER NOT NULL DEFAULT 0 CHECK (owner_nonce >= 0);
`

// Migrations is the full schema history of a vault database, custody
// tables included. Pass it to sqlitepool.Config.Migrations.
var Migrations = []string{custody.Schema, Schema, OwnerNonceSchema}

const lockColumns = "delegate, token, balance, created_at, updated_at"

func scanLock(stmt *sqlite.Stmt) (LockRecord, error) {
	delegate, err := identity.Parse(stmt.ColumnText(0))
	if err != nil {
		return LockRecord{}, fmt.Errorf("ledger: stored delegate: %w", err)
	}
	token, err := identity.Parse(stmt.ColumnText(1))
	if err != nil {
		return LockRecord{}, fmt.Errorf("ledger: stored token: %w", err)
	}
	return LockRecord{
		Delegate:  delegate,
		Token:     token,
		Balance:   uint64(stmt.ColumnInt64(2)),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
	}, nil
}

// initVaultState records the vault identity on first open and checks
// it on later opens.
func initVaultState(conn *sqlite.Conn, vault identity.Address) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO vault_state (id, vault, nonce) VALUES (1, ?, 0) ON CONFLICT (id) DO NOTHING",
		&sqlitex.ExecOptions{Args: []any{vault.String()}})
	if err != nil {
		return fmt.Errorf("ledger: initializing vault state: %w", err)
	}

	var stored string
	err = sqlitex.Execute(conn, "SELECT vault FROM vault_state WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stored = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("ledger: reading vault state: %w", err)
	}
	if stored != vault.String() {
		return fmt.Errorf("ledger: database belongs to vault %s, not %s", stored, vault)
	}
	return nil
}

func readNonce(conn *sqlite.Conn) (uint64, error) {
	var nonce int64
	found := false
	err := sqlitex.Execute(conn, "SELECT nonce FROM vault_state WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			nonce = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: reading nonce: %w", err)
	}
	if !found {
		return 0, errors.New("ledger: vault state missing")
	}
	return uint64(nonce), nil
}

// advanceNonce moves the nonce from current to current+1.
func advanceNonce(conn *sqlite.Conn, current uint64) (uint64, error) {
	if current >= MaxAmount {
		return 0, fmt.Errorf("%w: sequence number exhausted", ErrAmountOverflow)
	}
	err := sqlitex.Execute(conn, "UPDATE vault_state SET nonce = ? WHERE id = 1 AND nonce = ?", &sqlitex.ExecOptions{
		Args: []any{int64(current + 1), int64(current)},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: advancing nonce: %w", err)
	}
	if conn.Changes() != 1 {
		return 0, fmt.Errorf("%w: sequence number moved from %d", ErrInvalidPermission, current)
	}
	return current + 1, nil
}

func readOwnerNonce(conn *sqlite.Conn) (uint64, error) {
	var nonce int64
	found := false
	err := sqlitex.Execute(conn, "SELECT owner_nonce FROM vault_state WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			nonce = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: reading owner nonce: %w", err)
	}
	if !found {
		return 0, errors.New("ledger: vault state missing")
	}
	return uint64(nonce), nil
}

func advanceOwnerNonce(conn *sqlite.Conn, current uint64) (uint64, error) {
	if current >= MaxAmount {
		return 0, fmt.Errorf("%w: owner nonce exhausted", ErrAmountOverflow)
	}
	err := sqlitex.Execute(conn, "UPDATE vault_state SET owner_nonce = ? WHERE id = 1 AND owner_nonce = ?", &sqlitex.ExecOptions{
		Args: []any{int64(current + 1), int64(current)},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: advancing owner nonce: %w", err)
	}
	if conn.Changes() != 1 {
		return 0, fmt.Errorf("%w: owner nonce moved from %d", ErrInvalidPermission, current)
	}
	return current + 1, nil
}

func loadLock(conn *sqlite.Conn, key LockKey) (LockRecord, bool, error) {
	var record LockRecord
	found := false
	err := sqlitex.Execute(conn, "SELECT "+lockColumns+" FROM locks WHERE lock_key = ?", &sqlitex.ExecOptions{
		Args: []any{key[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			record, err = scanLock(stmt)
			found = true
			return err
		},
	})
	if err != nil {
		return LockRecord{}, false, fmt.Errorf("ledger: loading lock: %w", err)
	}
	return record, found, nil
}

func insertLock(conn *sqlite.Conn, record LockRecord) error {
	key := record.Key()
	err := sqlitex.Execute(conn, `
		INSERT INTO locks (lock_key, delegate, token, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			key[:],
			record.Delegate.String(),
			record.Token.String(),
			int64(record.Balance),
			record.CreatedAt.UnixNano(),
			record.UpdatedAt.UnixNano(),
		}})
	if err != nil {
		return fmt.Errorf("ledger: inserting lock: %w", err)
	}
	return nil
}

func updateLockBalance(conn *sqlite.Conn, key LockKey, balance uint64, now time.Time) error {
	err := sqlitex.Execute(conn, "UPDATE locks SET balance = ?, updated_at = ? WHERE lock_key = ?", &sqlitex.ExecOptions{
		Args: []any{int64(balance), now.UnixNano(), key[:]},
	})
	if err != nil {
		return fmt.Errorf("ledger: updating lock: %w", err)
	}
	return nil
}

func deleteLock(conn *sqlite.Conn, key LockKey) error {
	err := sqlitex.Execute(conn, "DELETE FROM locks WHERE lock_key = ?", &sqlitex.ExecOptions{
		Args: []any{key[:]},
	})
	if err != nil {
		return fmt.Errorf("ledger: deleting lock: %w", err)
	}
	return nil
}

// listLocks calls fn for every lock in insertion order. fn returning
// false stops the iteration.
func listLocks(conn *sqlite.Conn, fn func(LockRecord) (bool, error)) error {
	stop := errors.New("stop")
	err := sqlitex.Execute(conn, "SELECT "+lockColumns+" FROM locks ORDER BY seq", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanLock(stmt)
			if err != nil {
				return err
			}
			more, err := fn(record)
			if err != nil {
				return err
			}
			if !more {
				return stop
			}
			return nil
		},
	})
	if errors.Is(err, stop) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: listing locks: %w", err)
	}
	return nil
}

func countLocks(conn *sqlite.Conn) (int, error) {
	var count int
	err := sqlitex.Execute(conn, "SELECT count(*) FROM locks", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: counting locks: %w", err)
	}
	return count, nil
}

func lockAt(conn *sqlite.Conn, index int) (LockRecord, bool, error) {
	var record LockRecord
	found := false
	err := sqlitex.Execute(conn, "SELECT "+lockColumns+" FROM locks ORDER BY seq LIMIT 1 OFFSET ?", &sqlitex.ExecOptions{
		Args: []any{index},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			record, err = scanLock(stmt)
			found = true
			return err
		},
	})
	if err != nil {
		return LockRecord{}, false, fmt.Errorf("ledger: reading lock %d: %w", index, err)
	}
	return record, found, nil
}

func maxLockedForToken(conn *sqlite.Conn, token identity.Address) (uint64, error) {
	var amount int64
	err := sqlitex.Execute(conn, "SELECT coalesce(max(balance), 0) FROM locks WHERE token = ?", &sqlitex.ExecOptions{
		Args: []any{token.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			amount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: max locked for %s: %w", token, err)
	}
	return uint64(amount), nil
}
