// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

func TestRageQuitHookOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		hook         ledger.HookFunc
		wantNotified bool
		wantReason   string
	}{
		{
			name:         "acknowledged",
			hook:         func(context.Context, ledger.RageQuitNotice) error { return nil },
			wantNotified: true,
		},
		{
			name: "explicit rejection",
			hook: func(context.Context, ledger.RageQuitNotice) error {
				return &ledger.HookRejection{Message: "position still open"}
			},
			wantReason: "position still open",
		},
		{
			name: "wrapped rejection",
			hook: func(context.Context, ledger.RageQuitNotice) error {
				return errors.Join(errors.New("context"), &ledger.HookRejection{Message: "nope"})
			},
			wantReason: "nope",
		},
		{
			name: "silent failure",
			hook: func(context.Context, ledger.RageQuitNotice) error { return errors.New("connection reset") },
		},
		{
			name: "panic",
			hook: func(context.Context, ledger.RageQuitNotice) error { panic("out of gas") },
		},
		{
			name: "timeout",
			hook: func(ctx context.Context, _ ledger.RageQuitNotice) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
		{
			name: "ignores deadline",
			hook: func(context.Context, ledger.RageQuitNotice) error {
				select {}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			h.hooks[delegateA] = test.hook

			if err := h.lock(delegateA, tokenX, 70); err != nil {
				t.Fatalf("lock: %v", err)
			}
			result, err := h.vault.RageQuit(context.Background(), h.owner, delegateA, tokenX)
			if err != nil {
				t.Fatalf("RageQuit: %v", err)
			}
			if !result.HasHook {
				t.Error("HasHook = false for a delegate with a hook")
			}
			if result.Notified != test.wantNotified {
				t.Errorf("Notified = %v, want %v", result.Notified, test.wantNotified)
			}
			if result.Reason != test.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, test.wantReason)
			}
			if result.Released != 70 {
				t.Errorf("Released = %d, want 70", result.Released)
			}
			h.requireNoLock(delegateA, tokenX)
			h.requireNonce(1)
		})
	}
}

func TestRageQuitHookSeesCommittedRelease(t *testing.T) {
	h := newHarness(t)
	var seenBalance uint64 = 999
	var notice ledger.RageQuitNotice
	h.hooks[delegateA] = ledger.HookFunc(func(ctx context.Context, received ledger.RageQuitNotice) error {
		notice = received
		balance, err := h.vault.BalanceDelegated(ctx, delegateA, tokenX)
		if err != nil {
			return err
		}
		seenBalance = balance
		return nil
	})

	if err := h.lock(delegateA, tokenX, 25); err != nil {
		t.Fatalf("lock: %v", err)
	}
	result, err := h.vault.RageQuit(context.Background(), h.owner, delegateA, tokenX)
	if err != nil {
		t.Fatalf("RageQuit: %v", err)
	}
	if !result.Notified {
		t.Fatalf("hook failed: %+v", result)
	}
	if seenBalance != 0 {
		t.Errorf("hook saw delegated balance %d, want 0 (release committed first)", seenBalance)
	}
	if notice.Vault != vaultAddress || notice.Token != tokenX || notice.Released != 25 {
		t.Errorf("notice = %+v", notice)
	}
}

func TestRageQuitHookMayRelock(t *testing.T) {
	h := newHarness(t)
	// The hook runs after the first lock, at sequence number 1.
	relock := h.signAt(permission.OperationLock, delegateA, tokenY, 5, 1)
	h.hooks[delegateA] = ledger.HookFunc(func(ctx context.Context, _ ledger.RageQuitNotice) error {
		return h.vault.Lock(ctx, delegateA, tokenY, 5, relock)
	})

	if err := h.lock(delegateA, tokenX, 10); err != nil {
		t.Fatalf("lock: %v", err)
	}
	result, err := h.vault.RageQuit(context.Background(), h.owner, delegateA, tokenX)
	if err != nil {
		t.Fatalf("RageQuit: %v", err)
	}
	if !result.Notified {
		t.Errorf("re-entering hook failed: %+v", result)
	}
	if got := h.delegated(delegateA, tokenY); got != 5 {
		t.Errorf("lock placed by hook = %d, want 5", got)
	}
	h.requireNoLock(delegateA, tokenX)
}

func TestRageQuitRequiresOwner(t *testing.T) {
	h := newHarness(t)
	if err := h.lock(delegateA, tokenX, 10); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := h.vault.RageQuit(context.Background(), delegateA, delegateA, tokenX)
	if !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("RageQuit by delegate = %v, want ErrNotOwner", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 10 {
		t.Errorf("balance after refused rage quit = %d, want 10", got)
	}
}

func TestRageQuitMissingLock(t *testing.T) {
	h := newHarness(t)
	_, err := h.vault.RageQuit(context.Background(), h.owner, delegateA, tokenX)
	if !errors.Is(err, ledger.ErrMissingLock) {
		t.Fatalf("RageQuit without lock = %v, want ErrMissingLock", err)
	}
}
