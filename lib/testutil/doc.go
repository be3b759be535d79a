// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes; t.TempDir()
// paths grow with the test name and can exceed that.
//
// [RequireReceive] and [RequireClosed] wait on a channel with a
// deadline, so a missing send fails the test instead of hanging it.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
