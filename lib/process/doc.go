// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the lockvault
// binaries. [Fatal] reports the error returned by run() to stderr,
// where the structured logger may not exist yet, and exits with the
// code carried by an [*ExitError] or 1.
package process
