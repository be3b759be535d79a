// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

// Lock creates or grows delegate's lock on token by amount. signature
// must be the owner's signature over the "lock" permission message at
// the current sequence number. The resulting lock must be covered by
// the vault's custody balance of token.
func (v *Vault) Lock(ctx context.Context, delegate, token identity.Address, amount uint64, signature []byte) error {
	if err := v.checkReentry(ctx); err != nil {
		return err
	}
	if amount > MaxAmount {
		return &LockError{Op: "lock", Delegate: delegate, Token: token, Err: ErrAmountOverflow}
	}

	if err := v.acquire(); err != nil {
		return &LockError{Op: "lock", Delegate: delegate, Token: token, Err: err}
	}
	defer v.mu.Unlock()

	nonce, err := v.authorize(ctx, permission.OperationLock, delegate, token, amount, signature)
	if err != nil {
		return &LockError{Op: "lock", Delegate: delegate, Token: token, Err: err}
	}

	var event Locked
	err = v.update(ctx, func(conn *sqlite.Conn) error {
		key := KeyOf(delegate, token)
		now := v.clock.Now()

		record, found, err := loadLock(conn, key)
		if err != nil {
			return err
		}
		if found {
			if amount > MaxAmount-record.Balance {
				return fmt.Errorf("%w: lock of %d cannot grow by %d", ErrAmountOverflow, record.Balance, amount)
			}
			record.Balance += amount
			if err := updateLockBalance(conn, key, record.Balance, now); err != nil {
				return err
			}
		} else {
			record = LockRecord{Delegate: delegate, Token: token, Balance: amount, CreatedAt: now, UpdatedAt: now}
			if err := insertLock(conn, record); err != nil {
				return err
			}
		}

		held, err := v.custody.HeldBalance(ctx, conn, token, v.address)
		if err != nil {
			return fmt.Errorf("ledger: reading held balance: %w", err)
		}
		if held < record.Balance {
			return fmt.Errorf("%w: vault holds %d, lock needs %d", ErrInsufficientBalance, held, record.Balance)
		}

		next, err := advanceNonce(conn, nonce)
		if err != nil {
			return err
		}
		event = Locked{Delegate: delegate, Token: token, Amount: amount, Balance: record.Balance, Nonce: next}
		return nil
	})
	if err != nil {
		return &LockError{Op: "lock", Delegate: delegate, Token: token, Err: err}
	}

	v.events.Emit(ctx, event)
	return nil
}

// Unlock shrinks delegate's lock on token by amount, removing it when
// amount reaches or exceeds the balance. signature must be the owner's
// signature over the "unlock" permission message at the current
// sequence number.
func (v *Vault) Unlock(ctx context.Context, delegate, token identity.Address, amount uint64, signature []byte) error {
	if err := v.checkReentry(ctx); err != nil {
		return err
	}

	if err := v.acquire(); err != nil {
		return &LockError{Op: "unlock", Delegate: delegate, Token: token, Err: err}
	}
	defer v.mu.Unlock()

	nonce, err := v.authorize(ctx, permission.OperationUnlock, delegate, token, amount, signature)
	if err != nil {
		return &LockError{Op: "unlock", Delegate: delegate, Token: token, Err: err}
	}

	var event Unlocked
	err = v.update(ctx, func(conn *sqlite.Conn) error {
		key := KeyOf(delegate, token)

		record, found, err := loadLock(conn, key)
		if err != nil {
			return err
		}
		if !found {
			return ErrMissingLock
		}

		var remaining uint64
		if record.Balance > amount {
			remaining = record.Balance - amount
			err = updateLockBalance(conn, key, remaining, v.clock.Now())
		} else {
			err = deleteLock(conn, key)
		}
		if err != nil {
			return err
		}

		next, err := advanceNonce(conn, nonce)
		if err != nil {
			return err
		}
		event = Unlocked{Delegate: delegate, Token: token, Amount: amount, Remaining: remaining, Nonce: next}
		return nil
	})
	if err != nil {
		return &LockError{Op: "unlock", Delegate: delegate, Token: token, Err: err}
	}

	v.events.Emit(ctx, event)
	return nil
}

// authorize checks signature against the permission message for the
// current sequence number and returns that number. The caller holds
// v.mu, so the number cannot move before the mutation commits.
func (v *Vault) authorize(ctx context.Context, operation permission.Operation, delegate, token identity.Address, amount uint64, signature []byte) (uint64, error) {
	var nonce uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		nonce, err = readNonce(conn)
		return err
	})
	if err != nil {
		return 0, err
	}

	message := permission.Message{
		Operation: operation,
		Vault:     v.address,
		Delegate:  delegate,
		Token:     token,
		Amount:    amount,
		Nonce:     nonce,
	}
	if err := v.checkSignature(ctx, message, signature); err != nil {
		return 0, err
	}
	return nonce, nil
}
