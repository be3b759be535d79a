// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore stores ed25519 signing keys on disk sealed under a
// passphrase.
//
// A key file is an ASCII-armored age file encrypted to an scrypt
// recipient; its plaintext is the 32-byte ed25519 seed. Next to it, a
// ".pub" file holds the hex public key so that a key's address can be
// shown without the passphrase.
//
//	keystore.Save("owner.key", private, passphrase, keystore.DefaultWorkFactor)
//	private, err := keystore.Load("owner.key", passphrase)
package keystore
