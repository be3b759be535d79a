// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// lockvault is the command line for lockvaultd and for the keys that
// talk to it.
//
// Key commands work offline: keygen seals a new ed25519 key with an age
// passphrase, address prints the address of a key file, sign produces
// the owner's signature over a permission, and bundle combines
// threshold members' signatures.
// Every other command calls the daemon's socket, given with --socket or
// read from the configuration named by LOCKVAULT_CONFIG. Authenticated
// calls mint a fresh caller token from the --key file for each request.
//
// The passphrase comes from LOCKVAULT_PASSPHRASE when set and is
// otherwise read from the terminal.
package main
