// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the lock vault: a custodial ledger holding token
// balances for one owner, on which third-party delegates place and
// release locks authorized by the owner's signature.
//
// # Locks
//
// A lock is a claim by one delegate on some amount of one token, stored
// as a [LockRecord] keyed by (delegate, token). [Vault.Lock] creates or
// grows a record; [Vault.Unlock] shrinks it or, when the amount reaches
// or exceeds the balance, removes it. Both require an owner signature
// over a [permission.Message] built with the vault's current sequence
// number, and both advance the sequence number by exactly one on
// success. Nothing else touches the sequence number.
//
// The vault's custody balance of a token must cover every individual
// lock on that token. The check is per lock, not per sum: two
// delegates may each lock 100 against a balance of 100. Lock fails with
// [ErrInsufficientBalance] when its own record would exceed the balance.
//
// # Owner escape hatches
//
// [Vault.RageQuit] removes a lock unconditionally. The removal commits
// first; only then is the delegate's hook (if any) notified, with a
// timeout. The hook's success, explicit rejection, or silent failure
// is reported in [RageQuitResult] and never fails the operation.
//
// [Vault.ExternalCall] lets the owner route an arbitrary custody call
// from the vault's address. Calls whose selector is on the
// [SelectorDenyList] (token approve, by default) are refused before
// dispatch. The call runs inside the vault's transaction and is
// followed by [Vault.CheckAllLocks]; if any lock is no longer covered,
// the call and everything it wrote are rolled back.
//
// Both are owner-only. An owner with a key of its own calls them
// directly. A threshold or remote owner has no key to call with, so it
// signs a "rageQuit" or "externalCall" [permission.Message] instead,
// and anyone may submit it through [Vault.SignedRageQuit] or
// [Vault.SignedExternalCall]. Those messages are ordered by a separate
// owner nonce ([Vault.OwnerNonce]); the sequence number stays reserved
// for lock and unlock.
//
// # Re-entry
//
// While the vault waits on code outside itself (an external call's
// callee, or a programmable owner's validator) it is in an outbound
// call. A vault operation invoked with a context derived from that
// call fails with [ErrReentrantCall]. So does any mutating operation
// that arrives on another context while the call is in flight, since
// the vault cannot tell a callee that dropped its context from an
// unrelated caller.
//
// # Atomicity
//
// Mutating operations hold the vault mutex and run in one IMMEDIATE
// SQLite transaction on the shared database that also holds custody
// balances. Views read through a separate pooled connection and never
// block on the mutex.
package ledger
