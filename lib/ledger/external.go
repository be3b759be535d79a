// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

type reentryKey struct{}

// checkReentry fails when ctx descends from an outbound call this
// vault is making.
func (v *Vault) checkReentry(ctx context.Context) error {
	if active, _ := ctx.Value(reentryKey{}).(*Vault); active == v {
		return ErrReentrantCall
	}
	return nil
}

// ExternalCall sends value of the native asset and payload from the
// vault to target. Only the owner may call it. A non-empty payload
// must carry a selector that is not on the deny list. The call runs
// inside the vault transaction; if afterwards any lock is no longer
// covered by the vault's custody balance, the call is rolled back with
// ErrInsufficientBalance.
//
// While the callee runs, every mutating vault operation fails with
// ErrReentrantCall, whatever context it is called with.
func (v *Vault) ExternalCall(ctx context.Context, caller, target identity.Address, value uint64, payload []byte) ([]byte, error) {
	if err := v.checkReentry(ctx); err != nil {
		return nil, err
	}
	if err := v.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	return v.externalCall(ctx, target, value, payload, nil)
}

// SignedExternalCall is ExternalCall authorized by the owner's
// signature over the "externalCall" message at the current owner nonce
// rather than by the caller's identity. The message binds target,
// value and payload. The owner nonce advances only if the call
// commits.
func (v *Vault) SignedExternalCall(ctx context.Context, target identity.Address, value uint64, payload, signature []byte) ([]byte, error) {
	if err := v.checkReentry(ctx); err != nil {
		return nil, err
	}
	return v.externalCall(ctx, target, value, payload, &ownerGrant{
		message: permission.Message{
			Operation: permission.OperationExternalCall,
			Delegate:  target,
			Amount:    value,
			Payload:   payload,
		},
		signature: signature,
	})
}

func (v *Vault) externalCall(ctx context.Context, target identity.Address, value uint64, payload []byte, grant *ownerGrant) ([]byte, error) {
	var selector custody.Selector
	if len(payload) > 0 {
		if len(payload) < custody.SelectorSize {
			return nil, fmt.Errorf("%w: %d bytes, selector needs %d", ErrMalformedPayload, len(payload), custody.SelectorSize)
		}
		copy(selector[:], payload)
		if v.denyList.Denies(selector) {
			return nil, fmt.Errorf("%w: %s", ErrForbiddenSelector, selector)
		}
	}
	if value > MaxAmount {
		return nil, fmt.Errorf("%w: call value %d", ErrAmountOverflow, value)
	}

	if err := v.acquire(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	var ownerNonce uint64
	if grant != nil {
		var err error
		ownerNonce, err = v.authorizeOwner(ctx, grant.message, grant.signature)
		if err != nil {
			return nil, err
		}
	}

	var result []byte
	err := v.update(ctx, func(conn *sqlite.Conn) error {
		callErr := v.callOut(ctx, func(callCtx context.Context) error {
			var err error
			result, err = v.custody.Call(callCtx, conn, v.address, target, value, payload)
			return err
		})

		covered, checkErr := v.checkAllLocks(ctx, conn)
		switch {
		case callErr != nil:
			return fmt.Errorf("%w: %w", ErrCallFailed, callErr)
		case checkErr != nil:
			return checkErr
		case !covered:
			return fmt.Errorf("%w: after call to %s", ErrInsufficientBalance, target.Short())
		}
		if grant != nil {
			if _, err := advanceOwnerNonce(conn, ownerNonce); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		v.logger.Info("external call rejected",
			"target", target,
			"value", value,
			"selector", selector,
			"error", err,
		)
		return nil, err
	}

	v.events.Emit(ctx, ExternalCalled{Target: target, Value: value, Selector: selector, Result: len(result)})
	return result, nil
}
