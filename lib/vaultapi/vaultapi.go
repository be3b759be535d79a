// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultapi

import (
	"time"

	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/version"
)

// Socket actions.
const (
	ActionStatus = "status" // no fields

	ActionLock         = "lock"          // token, amount, signature
	ActionUnlock       = "unlock"        // token, amount, signature
	ActionRageQuit     = "rage-quit"     // delegate, token, signature?
	ActionExternalCall = "external-call" // target, value, payload, signature?
	ActionTransfer     = "transfer"      // token, to, amount

	ActionNonce            = "nonce"             // no fields
	ActionLocks            = "locks"             // no fields
	ActionLockAt           = "lock-at"           // index
	ActionBalanceDelegated = "balance-delegated" // delegate, token
	ActionBalanceLocked    = "balance-locked"    // token
	ActionCheckBalances    = "check-balances"    // no fields
	ActionBalanceOf        = "balance-of"        // token, holder
)

// StatusResponse describes the running vault.
type StatusResponse struct {
	Vault         identity.Address  `cbor:"vault" json:"vault"`
	Owner         identity.Address  `cbor:"owner" json:"owner"`
	Nonce         uint64            `cbor:"nonce" json:"nonce"`
	OwnerNonce    uint64            `cbor:"owner_nonce" json:"owner_nonce"`
	Locks         int               `cbor:"locks" json:"locks"`
	UptimeSeconds float64           `cbor:"uptime_seconds" json:"uptime_seconds"`
	Build         version.BuildInfo `cbor:"build" json:"build"`
}

// NonceResponse carries the sequence number. Lock and unlock return it
// after advancing.
type NonceResponse struct {
	Nonce uint64 `cbor:"nonce" json:"nonce"`
}

// RageQuitResponse reports a removed lock and the delegate hook's
// answer.
type RageQuitResponse struct {
	Delegate identity.Address `cbor:"delegate" json:"delegate"`
	Token    identity.Address `cbor:"token" json:"token"`
	Released uint64           `cbor:"released" json:"released"`
	HasHook  bool             `cbor:"has_hook" json:"has_hook"`
	Notified bool             `cbor:"notified" json:"notified"`
	Reason   string           `cbor:"reason,omitempty" json:"reason,omitempty"`
}

// ExternalCallResponse carries the target's raw result.
type ExternalCallResponse struct {
	Result []byte `cbor:"result" json:"result"`
}

// LockView is one lock record, with Unix-second timestamps.
type LockView struct {
	Delegate  identity.Address `cbor:"delegate" json:"delegate"`
	Token     identity.Address `cbor:"token" json:"token"`
	Balance   uint64           `cbor:"balance" json:"balance"`
	CreatedAt int64            `cbor:"created_at" json:"created_at"`
	UpdatedAt int64            `cbor:"updated_at" json:"updated_at"`
}

// Created returns CreatedAt as a time.
func (v LockView) Created() time.Time { return time.Unix(v.CreatedAt, 0).UTC() }

// Updated returns UpdatedAt as a time.
func (v LockView) Updated() time.Time { return time.Unix(v.UpdatedAt, 0).UTC() }

// LocksResponse lists every lock in insertion order.
type LocksResponse struct {
	Locks []LockView `cbor:"locks" json:"locks"`
}

// AmountResponse carries a single token amount.
type AmountResponse struct {
	Amount uint64 `cbor:"amount" json:"amount"`
}

// CheckResponse reports whether custody covers every lock.
type CheckResponse struct {
	OK bool `cbor:"ok" json:"ok"`
}
