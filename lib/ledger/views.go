// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Nonce returns the current sequence number.
func (v *Vault) Nonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		nonce, err = readNonce(conn)
		return err
	})
	return nonce, err
}

// OwnerNonce returns the nonce the next owner-signed rage quit or
// external call must be signed at.
func (v *Vault) OwnerNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		nonce, err = readOwnerNonce(conn)
		return err
	})
	return nonce, err
}

// Owner returns the current owner.
func (v *Vault) Owner(ctx context.Context) (identity.Address, error) {
	owner, _, err := v.owner.Owner(ctx)
	if err != nil {
		return identity.Address{}, fmt.Errorf("ledger: resolving owner: %w", err)
	}
	return owner, nil
}

// LockCount returns the number of active locks.
func (v *Vault) LockCount(ctx context.Context) (int, error) {
	var count int
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		count, err = countLocks(conn)
		return err
	})
	return count, err
}

// LockAt returns the index-th active lock in insertion order.
func (v *Vault) LockAt(ctx context.Context, index int) (LockRecord, error) {
	if index < 0 {
		return LockRecord{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	var record LockRecord
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var found bool
		var err error
		record, found, err = lockAt(conn, index)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		return nil
	})
	return record, err
}

// Locks returns every active lock in insertion order.
func (v *Vault) Locks(ctx context.Context) ([]LockRecord, error) {
	var records []LockRecord
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		return listLocks(conn, func(record LockRecord) (bool, error) {
			records = append(records, record)
			return true, nil
		})
	})
	return records, err
}

// BalanceDelegated returns delegate's locked amount of token, zero when
// there is no lock.
func (v *Vault) BalanceDelegated(ctx context.Context, delegate, token identity.Address) (uint64, error) {
	var balance uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		record, _, err := loadLock(conn, KeyOf(delegate, token))
		balance = record.Balance
		return err
	})
	return balance, err
}

// MaxLockedForToken returns the largest single lock on token. Locks
// are checked individually, so this, not their sum, is the balance the
// vault must keep.
func (v *Vault) MaxLockedForToken(ctx context.Context, token identity.Address) (uint64, error) {
	var amount uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		amount, err = maxLockedForToken(conn, token)
		return err
	})
	return amount, err
}

// BalanceLocked is MaxLockedForToken.
func (v *Vault) BalanceLocked(ctx context.Context, token identity.Address) (uint64, error) {
	return v.MaxLockedForToken(ctx, token)
}

// HeldBalance returns the vault's custody balance of token.
func (v *Vault) HeldBalance(ctx context.Context, token identity.Address) (uint64, error) {
	var held uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		held, err = v.custody.HeldBalance(ctx, conn, token, v.address)
		return err
	})
	return held, err
}

// CheckAllLocks reports whether every active lock is covered by the
// vault's custody balance of its token.
func (v *Vault) CheckAllLocks(ctx context.Context) (bool, error) {
	var covered bool
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		covered, err = v.checkAllLocks(ctx, conn)
		return err
	})
	return covered, err
}

// CheckBalances is CheckAllLocks.
func (v *Vault) CheckBalances(ctx context.Context) (bool, error) {
	return v.CheckAllLocks(ctx)
}

func (v *Vault) checkAllLocks(ctx context.Context, conn *sqlite.Conn) (bool, error) {
	var records []LockRecord
	err := listLocks(conn, func(record LockRecord) (bool, error) {
		records = append(records, record)
		return true, nil
	})
	if err != nil {
		return false, err
	}

	held := make(map[identity.Address]uint64)
	for _, record := range records {
		balance, cached := held[record.Token]
		if !cached {
			balance, err = v.custody.HeldBalance(ctx, conn, record.Token, v.address)
			if err != nil {
				return false, fmt.Errorf("ledger: reading held balance: %w", err)
			}
			held[record.Token] = balance
		}
		if balance < record.Balance {
			v.logger.Warn("lock not covered",
				"delegate", record.Delegate,
				"token", record.Token,
				"locked", record.Balance,
				"held", balance,
			)
			return false, nil
		}
	}
	return true, nil
}
