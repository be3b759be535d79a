// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// RageQuitNotice tells a delegate that one of its locks was released
// by the owner.
type RageQuitNotice struct {
	Vault    identity.Address `cbor:"vault"`
	Delegate identity.Address `cbor:"delegate"`
	Token    identity.Address `cbor:"token"`
	Released uint64           `cbor:"released"`
}

// DelegateHook receives rage-quit notices for a programmable delegate.
// A nil return acknowledges the notice.
type DelegateHook interface {
	OnRageQuit(ctx context.Context, notice RageQuitNotice) error
}

// HookFunc adapts a function to DelegateHook.
type HookFunc func(ctx context.Context, notice RageQuitNotice) error

// OnRageQuit calls f.
func (f HookFunc) OnRageQuit(ctx context.Context, notice RageQuitNotice) error {
	return f(ctx, notice)
}

// HookResolver finds the hook for a delegate. Delegates without a hook
// are plain identities and are not notified.
type HookResolver interface {
	HookFor(delegate identity.Address) (DelegateHook, bool)
}

// StaticHooks is a HookResolver backed by a fixed map.
type StaticHooks map[identity.Address]DelegateHook

// HookFor looks delegate up in the map.
func (s StaticHooks) HookFor(delegate identity.Address) (DelegateHook, bool) {
	hook, ok := s[delegate]
	return hook, ok
}

// HookRejection is an explicit, readable refusal returned by a hook.
type HookRejection struct {
	Message string
}

func (r *HookRejection) Error() string {
	return fmt.Sprintf("ledger: delegate hook rejected notice: %s", r.Message)
}

// Reason returns the delegate's stated reason.
func (r *HookRejection) Reason() string { return r.Message }

// reasoner is implemented by hook errors that carry a readable reason.
type reasoner interface {
	Reason() string
}

// hookOutcome classifies a hook error into (notified, reason).
func hookOutcome(err error) (bool, string) {
	if err == nil {
		return true, ""
	}
	var explicit reasoner
	if errors.As(err, &explicit) {
		return false, explicit.Reason()
	}
	return false, ""
}
