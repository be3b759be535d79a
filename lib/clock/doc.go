// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The vault stamps lock records with creation and update times, caller
// tokens carry issue and expiry times, and the daemon sweeps expired
// replay-cache entries on a ticker. All of these read time through a
// Clock so tests can pin it:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	vault, _ := ledger.Open(ledger.Config{Clock: c, ...})
//	c.Advance(time.Minute)
//
// Production code uses Real().
package clock
