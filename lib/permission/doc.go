// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission defines the messages a vault owner signs to let a
// delegate lock or unlock vault balances, and the authorizers that
// decide whether a signature speaks for the owner.
//
// # Permission hash
//
// A [Message] names the operation, the vault, the delegate, the token,
// the amount, and the vault's current sequence number. Its canonical
// byte form is
//
//	operation || vault(20) || delegate(20) || token(20) || amount(8, BE) || nonce(8, BE)
//
// where operation is the literal "lock" or "unlock". The permission
// hash is SHA3-256 of those bytes. Because the nonce advances on every
// successful lock or unlock, a signature authorizes exactly one
// operation: once used, the vault's nonce no longer matches and the
// same signature hashes to a different message.
//
// # Owner operations
//
// An owner that cannot call the vault directly (a threshold or remote
// identity has no key of its own) signs "rageQuit" and "externalCall"
// messages instead. They use the same layout with the vault's owner
// nonce, a counter separate from the sequence number:
//
//	"rageQuit"     || vault || delegate || token || 0(8) || owner nonce(8)
//	"externalCall" || vault || target   || 0(20) || value(8, BE) || owner nonce(8) || SHA3-256(payload)
//
// The delegate is never recovered from the signature. The vault takes
// it from the authenticated caller and rebuilds the message; a
// signature issued for one delegate is useless to another.
//
// # Authorizers
//
// A [SignatureAuthorizer] answers "does this signature over this hash
// speak for the owner?". Two shapes exist:
//
//   - [KeyAuthorizer]: a plain ed25519 public key.
//   - [ProgrammableAuthorizer]: an identity whose acceptance logic is a
//     [Validator]. [ThresholdValidator] accepts m-of-n ed25519
//     signatures; [RemoteValidator] asks another service over the
//     socket protocol.
//
// [Authorize] is the single entry point the vault uses. It returns
// [ErrInvalidPermission] for any rejection, including validator
// failures, so callers never mistake a broken validator for consent.
package permission
