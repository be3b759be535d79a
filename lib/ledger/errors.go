// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

var (
	// ErrInvalidPermission is returned when the owner's signature does
	// not authorize the operation.
	ErrInvalidPermission = permission.ErrInvalidPermission

	// ErrMissingLock is returned by Unlock and RageQuit when no lock
	// exists for the (delegate, token) pair.
	ErrMissingLock = errors.New("ledger: no lock for delegate and token")

	// ErrInsufficientBalance is returned when a lock would not be
	// covered by the vault's custody balance. The operation is rolled
	// back.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance for locks")

	// ErrMalformedPayload is returned by ExternalCall for a non-empty
	// payload too short to carry a selector.
	ErrMalformedPayload = errors.New("ledger: malformed call payload")

	// ErrForbiddenSelector is returned by ExternalCall when the
	// payload's selector is on the deny list.
	ErrForbiddenSelector = errors.New("ledger: forbidden selector")

	// ErrNotOwner is returned by owner-only operations invoked by
	// anyone else.
	ErrNotOwner = errors.New("ledger: caller is not the vault owner")

	// ErrReentrantCall is returned by vault operations invoked from
	// inside an outbound call, and by mutating operations that arrive
	// while one is in flight.
	ErrReentrantCall = errors.New("ledger: reentrant vault call")

	// ErrIndexOutOfRange is returned by LockAt.
	ErrIndexOutOfRange = errors.New("ledger: lock index out of range")

	// ErrAmountOverflow is returned when an amount or a resulting lock
	// balance exceeds MaxAmount.
	ErrAmountOverflow = errors.New("ledger: amount overflow")

	// ErrCallFailed wraps a failure reported by the callee of an
	// external call.
	ErrCallFailed = errors.New("ledger: external call failed")
)

// LockError is a failure scoped to one (delegate, token) lock.
type LockError struct {
	Op       string
	Delegate identity.Address
	Token    identity.Address
	Err      error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("ledger: %s delegate=%s token=%s: %v", e.Op, e.Delegate.Short(), e.Token.Short(), e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// Kind classifies err into a stable string for wire responses. Nil
// maps to "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPermission):
		return "invalid_permission"
	case errors.Is(err, ErrMissingLock):
		return "missing_lock"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrForbiddenSelector):
		return "forbidden_selector"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant_call"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrAmountOverflow), errors.Is(err, custody.ErrAmountOverflow):
		return "amount_overflow"
	case errors.Is(err, ErrCallFailed):
		return "call_failed"
	case errors.Is(err, custody.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}
