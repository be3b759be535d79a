// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines the 20-byte Address used for every party the
// vault deals with: the vault itself, its owner, delegates, and token
// contracts.
//
// Addresses are derived, never chosen. A key-backed identity's address
// is the BLAKE3 digest of its ed25519 public key, truncated to 20
// bytes ([FromPublicKey]); a named system identity (a token, a fixture
// in tests) is the BLAKE3 digest of its name under a separate domain
// tag ([Named]). The two domains never collide.
//
// The text form is "0x" followed by 40 lowercase hex digits.
// [ParseRef] additionally accepts "@name" as shorthand for [Named],
// which is how configuration files refer to tokens.
//
// Address implements encoding.TextMarshaler, so it serializes as a
// string in CBOR (via lib/codec), YAML, and JSON.
package identity
