// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "time"

// Fataler is the subset of testing.TB the channel helpers report
// through.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch. It fails t when ch
// closes first or stays silent for timeout; what names the awaited
// event in the failure message.
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case value, open := <-ch:
		if !open {
			t.Fatalf("%s: channel closed with no value", what)
			return zero
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing after %v", what, timeout)
		return zero
	}
}

// RequireClosed fails t unless ch is closed, or delivers a value,
// within timeout.
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", what, timeout)
	}
}
