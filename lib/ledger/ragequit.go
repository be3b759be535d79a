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

// RageQuit removes delegate's lock on token. Only the owner may call
// it. The removal is committed before the delegate's hook, if any, is
// notified; the hook's response is reported in the result and never
// turns into an error. The sequence number is not touched.
func (v *Vault) RageQuit(ctx context.Context, caller, delegate, token identity.Address) (RageQuitResult, error) {
	if err := v.checkReentry(ctx); err != nil {
		return RageQuitResult{}, err
	}
	if err := v.requireOwner(ctx, caller); err != nil {
		return RageQuitResult{}, err
	}
	return v.rageQuit(ctx, delegate, token, nil)
}

// SignedRageQuit is RageQuit authorized by the owner's signature over
// the "rageQuit" message at the current owner nonce rather than by the
// caller's identity. Any caller may submit it. The owner nonce
// advances with the removal; the sequence number is not touched.
func (v *Vault) SignedRageQuit(ctx context.Context, delegate, token identity.Address, signature []byte) (RageQuitResult, error) {
	if err := v.checkReentry(ctx); err != nil {
		return RageQuitResult{}, err
	}
	return v.rageQuit(ctx, delegate, token, &ownerGrant{
		message: permission.Message{
			Operation: permission.OperationRageQuit,
			Delegate:  delegate,
			Token:     token,
		},
		signature: signature,
	})
}

// ownerGrant is an owner signature standing in for the owner as
// caller.
type ownerGrant struct {
	message   permission.Message
	signature []byte
}

func (v *Vault) rageQuit(ctx context.Context, delegate, token identity.Address, grant *ownerGrant) (RageQuitResult, error) {
	released, err := v.releaseLock(ctx, delegate, token, grant)
	if err != nil {
		return RageQuitResult{}, &LockError{Op: "rage quit", Delegate: delegate, Token: token, Err: err}
	}

	result := RageQuitResult{Delegate: delegate, Token: token, Released: released}
	if hook, ok := v.hooks.HookFor(delegate); ok {
		result.HasHook = true
		result.Notified, result.Reason = v.notify(ctx, hook, RageQuitNotice{
			Vault:    v.address,
			Delegate: delegate,
			Token:    token,
			Released: released,
		})
	}

	v.events.Emit(ctx, RageQuit{Result: result})
	return result, nil
}

// releaseLock deletes the lock under v.mu and returns its balance. A
// non-nil grant is checked first and consumes the owner nonce.
func (v *Vault) releaseLock(ctx context.Context, delegate, token identity.Address, grant *ownerGrant) (uint64, error) {
	if err := v.acquire(); err != nil {
		return 0, err
	}
	defer v.mu.Unlock()

	var ownerNonce uint64
	if grant != nil {
		var err error
		ownerNonce, err = v.authorizeOwner(ctx, grant.message, grant.signature)
		if err != nil {
			return 0, err
		}
	}

	var released uint64
	err := v.update(ctx, func(conn *sqlite.Conn) error {
		key := KeyOf(delegate, token)
		record, found, err := loadLock(conn, key)
		if err != nil {
			return err
		}
		if !found {
			return ErrMissingLock
		}
		released = record.Balance
		if grant != nil {
			if _, err := advanceOwnerNonce(conn, ownerNonce); err != nil {
				return err
			}
		}
		return deleteLock(conn, key)
	})
	return released, err
}

// notify calls hook with a deadline of v.hookTimeout. A hook that
// ignores its context is abandoned when the deadline passes.
func (v *Vault) notify(ctx context.Context, hook DelegateHook, notice RageQuitNotice) (bool, string) {
	hookCtx, cancel := context.WithTimeout(ctx, v.hookTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fmt.Errorf("ledger: delegate hook panicked: %v", recovered)
			}
		}()
		done <- hook.OnRageQuit(hookCtx, notice)
	}()

	select {
	case err := <-done:
		notified, reason := hookOutcome(err)
		if err != nil {
			v.logger.Warn("rage-quit hook failed",
				"delegate", notice.Delegate,
				"token", notice.Token,
				"reason", reason,
				"error", err,
			)
		}
		return notified, reason
	case <-hookCtx.Done():
		v.logger.Warn("rage-quit hook timed out",
			"delegate", notice.Delegate,
			"token", notice.Token,
			"timeout", v.hookTimeout,
		)
		return false, ""
	}
}
