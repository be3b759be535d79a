// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package calltoken authenticates callers of the lockvault socket API
// with self-signed ed25519 tokens.
//
// A caller's identity is the address derived from its public key
// (identity.FromPublicKey). Every request carries a fresh token the
// caller signed with that key. The daemon needs no key registry: it
// checks that the token's subject is the address of the key that
// signed it, then passes that subject to the vault as the caller.
// Whether the caller may do what it asks is the vault's decision
// (owner-only operations compare against the owner; lock and unlock
// need the owner's permission signature regardless of caller).
//
// # Wire format
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(token) - 64.
//
// # Replay
//
// Tokens are short-lived (see [MaxLifetime]) and single-use. The
// [ReplayCache] remembers every accepted token ID until that token
// would have expired anyway, so its size is bounded by the request
// rate times the maximum lifetime.
package calltoken
