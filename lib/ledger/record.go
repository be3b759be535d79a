// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// MaxAmount is the largest amount and lock balance the vault stores.
const MaxAmount = math.MaxInt64

var lockKeyDomain = []byte("lockvault.ledger.lock.v1")

// LockKey identifies the lock of one delegate on one token.
type LockKey [32]byte

// KeyOf derives the lock key for (delegate, token).
func KeyOf(delegate, token identity.Address) LockKey {
	hasher := blake3.New()
	hasher.Write(lockKeyDomain)
	hasher.Write(delegate[:])
	hasher.Write(token[:])
	var key LockKey
	copy(key[:], hasher.Sum(nil))
	return key
}

// String returns the hex form.
func (k LockKey) String() string {
	return hex.EncodeToString(k[:])
}

// LockRecord is an active lock.
type LockRecord struct {
	Delegate  identity.Address `json:"delegate"`
	Token     identity.Address `json:"token"`
	Balance   uint64           `json:"balance"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Key returns the record's lock key.
func (r LockRecord) Key() LockKey {
	return KeyOf(r.Delegate, r.Token)
}

// RageQuitResult reports how the delegate's hook responded to a forced
// release. The lock is gone regardless.
type RageQuitResult struct {
	Delegate identity.Address `json:"delegate"`
	Token    identity.Address `json:"token"`
	Released uint64           `json:"released"`
	// HasHook is false when the delegate registered no hook; Notified
	// is then false and Reason empty.
	HasHook  bool   `json:"has_hook"`
	Notified bool   `json:"notified"`
	Reason   string `json:"reason,omitempty"`
}
