// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the lockvault
// command line.
//
// A [Command] tree dispatches on the first positional argument. Leaf
// commands declare their flags as tagged parameter structs bound by
// [FlagsFromParams]; see [BindFlags] for the supported tags and types.
// Flag parse failures come back wrapped with [process.Usage] so the
// process exits with status 2. Commands that embed [JSONOutput] gain a
// --json flag.
package cli
