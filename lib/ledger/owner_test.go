// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

// thresholdOwner is an m-of-n owner with no key of its own.
type thresholdOwner struct {
	t          *testing.T
	address    identity.Address
	keys       []ed25519.PrivateKey
	authorizer *permission.ProgrammableAuthorizer
}

func newThresholdOwner(t *testing.T, name string, signers, threshold int) *thresholdOwner {
	t.Helper()
	var publics []ed25519.PublicKey
	var privates []ed25519.PrivateKey
	for range signers {
		public, private, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		publics = append(publics, public)
		privates = append(privates, private)
	}
	validator, err := permission.NewThresholdValidator(publics, threshold)
	if err != nil {
		t.Fatalf("NewThresholdValidator: %v", err)
	}
	address := identity.Named(name)
	return &thresholdOwner{
		t:          t,
		address:    address,
		keys:       privates,
		authorizer: &permission.ProgrammableAuthorizer{Identity: address, Validator: validator},
	}
}

func (o *thresholdOwner) option() harnessOption {
	return func(cfg *ledger.Config) {
		cfg.Owner = ledger.FixedOwner{Address: o.address, Authorizer: o.authorizer}
	}
}

// sign returns a bundle over message from the listed signers.
func (o *thresholdOwner) sign(message permission.Message, signers ...int) []byte {
	o.t.Helper()
	message.Vault = vaultAddress
	hash := message.Hash()
	var bundle []permission.ThresholdSignature
	for _, index := range signers {
		bundle = append(bundle, permission.ThresholdSignature{
			Index:     index,
			Signature: ed25519.Sign(o.keys[index], hash[:]),
		})
	}
	data, err := permission.EncodeThresholdSignature(bundle)
	if err != nil {
		o.t.Fatalf("EncodeThresholdSignature: %v", err)
	}
	return data
}

func (h *harness) ownerNonce() uint64 {
	h.t.Helper()
	nonce, err := h.vault.OwnerNonce(context.Background())
	if err != nil {
		h.t.Fatalf("OwnerNonce: %v", err)
	}
	return nonce
}

func lockAsThreshold(t *testing.T, h *harness, owner *thresholdOwner, delegate, token identity.Address, amount uint64) {
	t.Helper()
	signature := owner.sign(permission.Message{
		Operation: permission.OperationLock,
		Delegate:  delegate,
		Token:     token,
		Amount:    amount,
		Nonce:     h.nonce(),
	}, 0, 1)
	if err := h.vault.Lock(context.Background(), delegate, token, amount, signature); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func TestThresholdOwnerRageQuit(t *testing.T) {
	owner := newThresholdOwner(t, "council", 3, 2)
	h := newHarness(t, owner.option())
	ctx := context.Background()

	lockAsThreshold(t, h, owner, delegateA, tokenX, 40)

	if _, err := h.vault.RageQuit(ctx, delegateA, delegateA, tokenX); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("unsigned RageQuit by delegate = %v, want ErrNotOwner", err)
	}

	message := permission.Message{Operation: permission.OperationRageQuit, Delegate: delegateA, Token: tokenX}
	_, err := h.vault.SignedRageQuit(ctx, delegateA, tokenX, owner.sign(message, 1))
	if !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("SignedRageQuit below threshold = %v, want ErrInvalidPermission", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 40 {
		t.Fatalf("lock after refused rage quit = %d, want 40", got)
	}

	signature := owner.sign(message, 0, 2)
	result, err := h.vault.SignedRageQuit(ctx, delegateA, tokenX, signature)
	if err != nil {
		t.Fatalf("SignedRageQuit: %v", err)
	}
	if result.Released != 40 {
		t.Errorf("Released = %d, want 40", result.Released)
	}
	h.requireNoLock(delegateA, tokenX)
	h.requireNonce(1)
	if got := h.ownerNonce(); got != 1 {
		t.Errorf("owner nonce = %d, want 1", got)
	}

	lockAsThreshold(t, h, owner, delegateA, tokenX, 10)
	_, err = h.vault.SignedRageQuit(ctx, delegateA, tokenX, signature)
	if !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("replayed SignedRageQuit = %v, want ErrInvalidPermission", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 10 {
		t.Errorf("lock after replay = %d, want 10", got)
	}
}

func TestSignedRageQuitBindsPair(t *testing.T) {
	owner := newThresholdOwner(t, "council", 2, 2)
	h := newHarness(t, owner.option())
	ctx := context.Background()

	lockAsThreshold(t, h, owner, delegateA, tokenX, 5)
	lockAsThreshold(t, h, owner, delegateB, tokenX, 5)

	forB := owner.sign(permission.Message{Operation: permission.OperationRageQuit, Delegate: delegateB, Token: tokenX}, 0, 1)
	if _, err := h.vault.SignedRageQuit(ctx, delegateA, tokenX, forB); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("signature for another delegate = %v, want ErrInvalidPermission", err)
	}

	forMissing := owner.sign(permission.Message{Operation: permission.OperationRageQuit, Delegate: delegateA, Token: tokenY}, 0, 1)
	if _, err := h.vault.SignedRageQuit(ctx, delegateA, tokenY, forMissing); !errors.Is(err, ledger.ErrMissingLock) {
		t.Fatalf("SignedRageQuit without lock = %v, want ErrMissingLock", err)
	}
	if got := h.ownerNonce(); got != 0 {
		t.Errorf("owner nonce after failures = %d, want 0", got)
	}
}

func TestKeyOwnerSignedRageQuit(t *testing.T) {
	h := newHarness(t)
	if err := h.lock(delegateA, tokenX, 20); err != nil {
		t.Fatalf("lock: %v", err)
	}
	signature, err := permission.Sign(h.ownerKey, permission.Message{
		Operation: permission.OperationRageQuit,
		Vault:     vaultAddress,
		Delegate:  delegateA,
		Token:     tokenX,
	})
	if err != nil {
		t.Fatalf("permission.Sign: %v", err)
	}
	if _, err := h.vault.SignedRageQuit(context.Background(), delegateA, tokenX, signature); err != nil {
		t.Fatalf("SignedRageQuit: %v", err)
	}
	h.requireNoLock(delegateA, tokenX)
	h.requireNonce(1)
}

func TestThresholdOwnerExternalCall(t *testing.T) {
	owner := newThresholdOwner(t, "council", 3, 2)
	h := newHarness(t, owner.option())
	ctx := context.Background()

	if _, err := h.vault.ExternalCall(ctx, delegateA, outsider, 4, nil); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("unsigned ExternalCall by delegate = %v, want ErrNotOwner", err)
	}

	plain := owner.sign(permission.Message{Operation: permission.OperationExternalCall, Delegate: outsider, Amount: 4}, 0, 1)
	if _, err := h.vault.SignedExternalCall(ctx, outsider, 5, nil, plain); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("call with a different value = %v, want ErrInvalidPermission", err)
	}
	if _, err := h.vault.SignedExternalCall(ctx, outsider, 4, nil, plain); err != nil {
		t.Fatalf("SignedExternalCall: %v", err)
	}
	if got := h.held(custody.Native); got != 6 {
		t.Errorf("native held = %d, want 6", got)
	}
	if got := h.ownerNonce(); got != 1 {
		t.Errorf("owner nonce = %d, want 1", got)
	}
	h.requireNonce(0)

	lockAsThreshold(t, h, owner, delegateA, tokenX, 70)

	signed := encodeCall(t, custody.SelectorTransfer, custody.TransferArgs{To: outsider, Amount: 20})
	swapped := encodeCall(t, custody.SelectorTransfer, custody.TransferArgs{To: outsider, Amount: 30})
	signature := owner.sign(permission.Message{
		Operation: permission.OperationExternalCall,
		Delegate:  tokenX,
		Nonce:     1,
		Payload:   signed,
	}, 1, 2)
	if _, err := h.vault.SignedExternalCall(ctx, tokenX, 0, swapped, signature); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("call with a different payload = %v, want ErrInvalidPermission", err)
	}

	tooMuch := encodeCall(t, custody.SelectorTransfer, custody.TransferArgs{To: outsider, Amount: 31})
	drain := owner.sign(permission.Message{
		Operation: permission.OperationExternalCall,
		Delegate:  tokenX,
		Nonce:     1,
		Payload:   tooMuch,
	}, 0, 2)
	if _, err := h.vault.SignedExternalCall(ctx, tokenX, 0, tooMuch, drain); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("uncovering call = %v, want ErrInsufficientBalance", err)
	}
	if got := h.ownerNonce(); got != 1 {
		t.Errorf("owner nonce after rolled-back call = %d, want 1", got)
	}

	if _, err := h.vault.SignedExternalCall(ctx, tokenX, 0, signed, signature); err != nil {
		t.Fatalf("SignedExternalCall transfer: %v", err)
	}
	if got := h.held(tokenX); got != 80 {
		t.Errorf("held = %d, want 80", got)
	}
	if got := h.ownerNonce(); got != 2 {
		t.Errorf("owner nonce = %d, want 2", got)
	}
	h.requireNonce(1)
}
