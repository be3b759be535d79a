// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custody is the token environment a vault holds balances in.
//
// Balances and allowances live in SQLite tables that share a database
// with the vault ledger. Every operation here takes the caller's
// *sqlite.Conn and never opens its own transaction, so the vault can
// run a custody call and its own invariant check inside one IMMEDIATE
// transaction and roll both back together. [Store] wraps the same
// operations in their own transactions for callers outside the vault
// (deposits, genesis minting, balance queries).
//
// # Calls
//
// An outbound call carries a target, a value of the [Native] asset, and
// a payload. A non-empty payload is a 4-byte [Selector] followed by a
// CBOR argument block:
//
//	selector(4) || cbor(args)
//
// The selector is the first four bytes of SHA3-256 over a method
// signature such as "approve(address,uint64)". [Dispatcher] moves the
// value, then hands the payload to the [Contract] registered for the
// target: [TokenContract] for any registered token, or a contract
// registered explicitly with [Dispatcher.Register].
package custody
