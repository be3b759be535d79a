// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/bureau-foundation/lockvault/lib/config"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/service"
)

// HookAction is the action a delegate's hook service serves.
const HookAction = "on-rage-quit"

// socketHooks resolves delegates to hook services reachable over Unix
// sockets.
type socketHooks map[identity.Address]*socketHook

func newSocketHooks(cfg *config.Config) (socketHooks, error) {
	sockets, err := cfg.HookSockets()
	if err != nil {
		return nil, err
	}
	hooks := make(socketHooks, len(sockets))
	for delegate, socketPath := range sockets {
		hooks[delegate] = &socketHook{client: service.NewServiceClientFromToken(socketPath, nil)}
	}
	return hooks, nil
}

// HookFor implements ledger.HookResolver.
func (h socketHooks) HookFor(delegate identity.Address) (ledger.DelegateHook, bool) {
	hook, ok := h[delegate]
	if !ok {
		return nil, false
	}
	return hook, true
}

// socketHook delivers a rage-quit notice with one socket call. A
// failure response from the hook service is a *service.ServiceError,
// whose Reason the ledger reports back to the owner.
type socketHook struct {
	client *service.ServiceClient
}

func (h *socketHook) OnRageQuit(ctx context.Context, notice ledger.RageQuitNotice) error {
	return h.client.Call(ctx, HookAction, map[string]any{
		"vault":    notice.Vault,
		"delegate": notice.Delegate,
		"token":    notice.Token,
		"released": notice.Released,
	}, nil)
}
