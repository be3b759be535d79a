// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/permission"
	"github.com/bureau-foundation/lockvault/lib/sqlitepool"
)

var (
	vaultAddress = identity.Named("test-vault")
	tokenX       = identity.Named("token-x")
	tokenY       = identity.Named("token-y")
	delegateA    = identity.Named("delegate-a")
	delegateB    = identity.Named("delegate-b")
	outsider     = identity.Named("outsider")
)

type harness struct {
	t          *testing.T
	pool       *sqlitepool.Pool
	store      *custody.Store
	dispatcher *custody.Dispatcher
	vault      *ledger.Vault
	events     *ledger.EventLog
	hooks      ledger.StaticHooks
	clock      *clock.FakeClock
	owner      identity.Address
	ownerKey   ed25519.PrivateKey
}

type harnessOption func(*ledger.Config)

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       filepath.Join(t.TempDir(), "vault.db"),
		PoolSize:   4,
		Migrations: ledger.Migrations,
	})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	store := custody.NewStore(pool)
	_, err = store.ApplyGenesis(ctx, custody.Genesis{
		Tokens: []custody.Token{
			{Address: tokenX, Symbol: "X"},
			{Address: tokenY, Symbol: "Y"},
		},
		Balances: []custody.GenesisBalance{
			{Token: tokenX, Holder: vaultAddress, Amount: 100},
			{Token: tokenY, Holder: vaultAddress, Amount: 40},
			{Token: custody.Native, Holder: vaultAddress, Amount: 10},
		},
	})
	if err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	authorizer, err := permission.NewKeyAuthorizer(public)
	if err != nil {
		t.Fatalf("NewKeyAuthorizer: %v", err)
	}

	h := &harness{
		t:          t,
		pool:       pool,
		store:      store,
		dispatcher: custody.NewDispatcher(nil),
		events:     &ledger.EventLog{},
		hooks:      ledger.StaticHooks{},
		clock:      clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		owner:      authorizer.Address(),
		ownerKey:   private,
	}

	cfg := ledger.Config{
		Pool:        pool,
		Address:     vaultAddress,
		Owner:       ledger.FixedOwner{Address: h.owner, Authorizer: authorizer},
		Custody:     h.dispatcher,
		Hooks:       h.hooks,
		Events:      h.events,
		HookTimeout: 200 * time.Millisecond,
		Clock:       h.clock,
	}
	for _, option := range options {
		option(&cfg)
	}
	h.vault, err = ledger.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	return h
}

// sign returns the owner's signature for operation at the vault's
// current nonce.
func (h *harness) sign(operation permission.Operation, delegate, token identity.Address, amount uint64) []byte {
	h.t.Helper()
	return h.signAt(operation, delegate, token, amount, h.nonce())
}

func (h *harness) signAt(operation permission.Operation, delegate, token identity.Address, amount, nonce uint64) []byte {
	h.t.Helper()
	signature, err := permission.Sign(h.ownerKey, permission.Message{
		Operation: operation,
		Vault:     vaultAddress,
		Delegate:  delegate,
		Token:     token,
		Amount:    amount,
		Nonce:     nonce,
	})
	if err != nil {
		h.t.Fatalf("permission.Sign: %v", err)
	}
	return signature
}

func (h *harness) lock(delegate, token identity.Address, amount uint64) error {
	h.t.Helper()
	return h.vault.Lock(context.Background(), delegate, token, amount, h.sign(permission.OperationLock, delegate, token, amount))
}

func (h *harness) unlock(delegate, token identity.Address, amount uint64) error {
	h.t.Helper()
	return h.vault.Unlock(context.Background(), delegate, token, amount, h.sign(permission.OperationUnlock, delegate, token, amount))
}

func (h *harness) nonce() uint64 {
	h.t.Helper()
	nonce, err := h.vault.Nonce(context.Background())
	if err != nil {
		h.t.Fatalf("Nonce: %v", err)
	}
	return nonce
}

func (h *harness) requireNonce(want uint64) {
	h.t.Helper()
	if got := h.nonce(); got != want {
		h.t.Errorf("nonce = %d, want %d", got, want)
	}
}

func (h *harness) delegated(delegate, token identity.Address) uint64 {
	h.t.Helper()
	balance, err := h.vault.BalanceDelegated(context.Background(), delegate, token)
	if err != nil {
		h.t.Fatalf("BalanceDelegated: %v", err)
	}
	return balance
}

func (h *harness) requireNoLock(delegate, token identity.Address) {
	h.t.Helper()
	locks, err := h.vault.Locks(context.Background())
	if err != nil {
		h.t.Fatalf("Locks: %v", err)
	}
	for _, record := range locks {
		if record.Delegate == delegate && record.Token == token {
			h.t.Errorf("lock for %s on %s still present with balance %d", delegate.Short(), token.Short(), record.Balance)
		}
	}
}

func (h *harness) held(token identity.Address) uint64 {
	h.t.Helper()
	held, err := h.vault.HeldBalance(context.Background(), token)
	if err != nil {
		h.t.Fatalf("HeldBalance: %v", err)
	}
	return held
}

func TestLockUnlockRageQuitScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.lock(delegateA, tokenX, 100); err != nil {
		t.Fatalf("lock 100: %v", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 100 {
		t.Errorf("after lock: balance = %d, want 100", got)
	}
	h.requireNonce(1)

	if err := h.unlock(delegateA, tokenX, 50); err != nil {
		t.Fatalf("unlock 50: %v", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 50 {
		t.Errorf("after unlock: balance = %d, want 50", got)
	}
	h.requireNonce(2)

	result, err := h.vault.RageQuit(ctx, h.owner, delegateA, tokenX)
	if err != nil {
		t.Fatalf("RageQuit: %v", err)
	}
	if result.Released != 50 || result.HasHook || result.Notified {
		t.Errorf("RageQuit result = %+v", result)
	}
	h.requireNoLock(delegateA, tokenX)
	h.requireNonce(2)

	count, err := h.vault.LockCount(ctx)
	if err != nil {
		t.Fatalf("LockCount: %v", err)
	}
	if count != 0 {
		t.Errorf("LockCount = %d, want 0", count)
	}
}

func TestLockUnlockInverse(t *testing.T) {
	h := newHarness(t)

	for round, amount := range []uint64{1, 40, 100} {
		start := h.nonce()
		if err := h.lock(delegateA, tokenX, amount); err != nil {
			t.Fatalf("round %d lock: %v", round, err)
		}
		if err := h.unlock(delegateA, tokenX, amount); err != nil {
			t.Fatalf("round %d unlock: %v", round, err)
		}
		h.requireNoLock(delegateA, tokenX)
		h.requireNonce(start + 2)
	}
}

func TestLockAccumulates(t *testing.T) {
	h := newHarness(t)

	if err := h.lock(delegateA, tokenX, 30); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	h.clock.Advance(time.Minute)
	if err := h.lock(delegateA, tokenX, 20); err != nil {
		t.Fatalf("second lock: %v", err)
	}
	record, err := h.vault.LockAt(context.Background(), 0)
	if err != nil {
		t.Fatalf("LockAt: %v", err)
	}
	if record.Balance != 50 {
		t.Errorf("balance = %d, want 50", record.Balance)
	}
	if !record.UpdatedAt.Equal(record.CreatedAt.Add(time.Minute)) {
		t.Errorf("timestamps: created %v, updated %v", record.CreatedAt, record.UpdatedAt)
	}
}

func TestReplayRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	signature := h.sign(permission.OperationLock, delegateA, tokenX, 10)
	if err := h.vault.Lock(ctx, delegateA, tokenX, 10, signature); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err := h.vault.Lock(ctx, delegateA, tokenX, 10, signature)
	if !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Fatalf("replayed signature = %v, want ErrInvalidPermission", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 10 {
		t.Errorf("balance after replay = %d, want 10", got)
	}
	h.requireNonce(1)
}

func TestSignatureBoundToDelegateAndOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	forA := h.sign(permission.OperationLock, delegateA, tokenX, 10)
	if err := h.vault.Lock(ctx, delegateB, tokenX, 10, forA); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Errorf("other delegate's signature = %v, want ErrInvalidPermission", err)
	}
	if err := h.vault.Unlock(ctx, delegateA, tokenX, 10, forA); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Errorf("lock signature used for unlock = %v, want ErrInvalidPermission", err)
	}
	if err := h.vault.Lock(ctx, delegateA, tokenX, 11, forA); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Errorf("signature for a different amount = %v, want ErrInvalidPermission", err)
	}
	future := h.signAt(permission.OperationLock, delegateA, tokenX, 10, 5)
	if err := h.vault.Lock(ctx, delegateA, tokenX, 10, future); !errors.Is(err, ledger.ErrInvalidPermission) {
		t.Errorf("signature for a future nonce = %v, want ErrInvalidPermission", err)
	}
	h.requireNonce(0)
}

func TestInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)

	if err := h.lock(delegateA, tokenX, 60); err != nil {
		t.Fatalf("lock 60: %v", err)
	}

	err := h.lock(delegateA, tokenX, 41)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("lock past held balance = %v, want ErrInsufficientBalance", err)
	}
	var lockErr *ledger.LockError
	if !errors.As(err, &lockErr) || lockErr.Op != "lock" || lockErr.Delegate != delegateA {
		t.Errorf("error %v is not a LockError for delegate A", err)
	}
	if got := h.delegated(delegateA, tokenX); got != 60 {
		t.Errorf("balance after failed lock = %d, want 60", got)
	}
	h.requireNonce(1)

	err = h.lock(delegateB, tokenX, 101)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("new lock past held balance = %v, want ErrInsufficientBalance", err)
	}
	h.requireNoLock(delegateB, tokenX)
	h.requireNonce(1)
}

func TestLocksAreCheckedIndividually(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.lock(delegateA, tokenX, 100); err != nil {
		t.Fatalf("delegate A: %v", err)
	}
	if err := h.lock(delegateB, tokenX, 100); err != nil {
		t.Fatalf("delegate B against the same balance: %v", err)
	}

	maxLocked, err := h.vault.MaxLockedForToken(ctx, tokenX)
	if err != nil {
		t.Fatalf("MaxLockedForToken: %v", err)
	}
	if maxLocked != 100 {
		t.Errorf("MaxLockedForToken = %d, want 100 (max, not sum)", maxLocked)
	}
	covered, err := h.vault.CheckBalances(ctx)
	if err != nil {
		t.Fatalf("CheckBalances: %v", err)
	}
	if !covered {
		t.Error("CheckBalances = false with every lock individually covered")
	}
}

func TestUnlockMissingAndExcess(t *testing.T) {
	h := newHarness(t)

	err := h.unlock(delegateA, tokenX, 1)
	if !errors.Is(err, ledger.ErrMissingLock) {
		t.Fatalf("unlock without lock = %v, want ErrMissingLock", err)
	}
	h.requireNonce(0)

	if err := h.lock(delegateA, tokenX, 30); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := h.unlock(delegateA, tokenX, 500); err != nil {
		t.Fatalf("unlock more than locked: %v", err)
	}
	h.requireNoLock(delegateA, tokenX)
	h.requireNonce(2)
}

func TestUnlockAbsorbsAnyAmount(t *testing.T) {
	h := newHarness(t)

	if err := h.lock(delegateA, tokenX, 30); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := h.unlock(delegateA, tokenX, math.MaxUint64); err != nil {
		t.Fatalf("unlock MaxUint64: %v", err)
	}
	h.requireNoLock(delegateA, tokenX)
	if got := h.delegated(delegateA, tokenX); got != 0 {
		t.Errorf("delegated = %d, want 0", got)
	}
	h.requireNonce(2)

	events := h.events.Events()
	last, ok := events[len(events)-1].(ledger.Unlocked)
	if !ok || last.Amount != math.MaxUint64 || last.Remaining != 0 {
		t.Errorf("last event = %+v, want a full release of MaxUint64", events[len(events)-1])
	}
}

func TestZeroAmountConsumesNonce(t *testing.T) {
	h := newHarness(t)

	if err := h.lock(delegateA, tokenX, 0); err != nil {
		t.Fatalf("lock 0: %v", err)
	}
	h.requireNonce(1)
	count, err := h.vault.LockCount(context.Background())
	if err != nil {
		t.Fatalf("LockCount: %v", err)
	}
	if count != 1 {
		t.Errorf("LockCount after zero lock = %d, want 1", count)
	}
	if err := h.unlock(delegateA, tokenX, 0); err != nil {
		t.Fatalf("unlock 0: %v", err)
	}
	h.requireNoLock(delegateA, tokenX)
	h.requireNonce(2)
}

func TestAmountOverflow(t *testing.T) {
	h := newHarness(t)
	err := h.vault.Lock(context.Background(), delegateA, tokenX, ledger.MaxAmount+1, nil)
	if !errors.Is(err, ledger.ErrAmountOverflow) {
		t.Fatalf("Lock(MaxAmount+1) = %v, want ErrAmountOverflow", err)
	}
	if ledger.Kind(err) != "amount_overflow" {
		t.Errorf("Kind = %q, want amount_overflow", ledger.Kind(err))
	}
}

func TestLockEnumeration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := []struct {
		delegate identity.Address
		token    identity.Address
		amount   uint64
	}{
		{delegateB, tokenY, 5},
		{delegateA, tokenX, 7},
		{delegateA, tokenY, 9},
	}
	for _, entry := range order {
		if err := h.lock(entry.delegate, entry.token, entry.amount); err != nil {
			t.Fatalf("lock: %v", err)
		}
	}

	count, err := h.vault.LockCount(ctx)
	if err != nil {
		t.Fatalf("LockCount: %v", err)
	}
	if count != len(order) {
		t.Fatalf("LockCount = %d, want %d", count, len(order))
	}
	for index, want := range order {
		record, err := h.vault.LockAt(ctx, index)
		if err != nil {
			t.Fatalf("LockAt(%d): %v", index, err)
		}
		if record.Delegate != want.delegate || record.Token != want.token || record.Balance != want.amount {
			t.Errorf("LockAt(%d) = %+v, want %+v", index, record, want)
		}
	}

	for _, index := range []int{-1, len(order)} {
		if _, err := h.vault.LockAt(ctx, index); !errors.Is(err, ledger.ErrIndexOutOfRange) {
			t.Errorf("LockAt(%d) = %v, want ErrIndexOutOfRange", index, err)
		}
	}

	// Removing the middle lock keeps the others in insertion order.
	if _, err := h.vault.RageQuit(ctx, h.owner, delegateA, tokenX); err != nil {
		t.Fatalf("RageQuit: %v", err)
	}
	second, err := h.vault.LockAt(ctx, 1)
	if err != nil {
		t.Fatalf("LockAt(1): %v", err)
	}
	if second.Delegate != delegateA || second.Token != tokenY {
		t.Errorf("LockAt(1) after removal = %+v", second)
	}
}

func TestEventsFollowCommits(t *testing.T) {
	h := newHarness(t)

	if err := h.lock(delegateA, tokenX, 10); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := h.lock(delegateA, tokenX, 1000); err == nil {
		t.Fatal("oversized lock succeeded")
	}
	if err := h.unlock(delegateA, tokenX, 4); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	events := h.events.Events()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2: %v", len(events), events)
	}
	locked, ok := events[0].(ledger.Locked)
	if !ok || locked.Balance != 10 || locked.Nonce != 1 {
		t.Errorf("first event = %#v", events[0])
	}
	unlocked, ok := events[1].(ledger.Unlocked)
	if !ok || unlocked.Remaining != 6 || unlocked.Nonce != 2 {
		t.Errorf("second event = %#v", events[1])
	}
}

func TestReopenKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.lock(delegateA, tokenX, 10); err != nil {
		t.Fatalf("lock: %v", err)
	}

	reopened, err := ledger.Open(ctx, ledger.Config{
		Pool:    h.pool,
		Address: vaultAddress,
		Owner:   ledger.FixedOwner{Address: h.owner},
		Custody: h.dispatcher,
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	nonce, err := reopened.Nonce(ctx)
	if err != nil {
		t.Fatalf("Nonce: %v", err)
	}
	if nonce != 1 {
		t.Errorf("nonce after reopen = %d, want 1", nonce)
	}

	_, err = ledger.Open(ctx, ledger.Config{
		Pool:    h.pool,
		Address: identity.Named("another-vault"),
		Owner:   ledger.FixedOwner{Address: h.owner},
		Custody: h.dispatcher,
	})
	if err == nil {
		t.Error("Open accepted a database recorded for a different vault")
	}
}

func TestOpenRequiresDependencies(t *testing.T) {
	if _, err := ledger.Open(context.Background(), ledger.Config{}); err == nil {
		t.Fatal("Open accepted an empty Config")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ledger.ErrInvalidPermission, "invalid_permission"},
		{&ledger.LockError{Op: "unlock", Err: ledger.ErrMissingLock}, "missing_lock"},
		{ledger.ErrInsufficientBalance, "insufficient_balance"},
		{ledger.ErrMalformedPayload, "malformed_payload"},
		{ledger.ErrForbiddenSelector, "forbidden_selector"},
		{ledger.ErrNotOwner, "not_owner"},
		{ledger.ErrReentrantCall, "reentrant_call"},
		{ledger.ErrIndexOutOfRange, "index_out_of_range"},
		{custody.ErrAmountOverflow, "amount_overflow"},
		{fmt.Errorf("transfer: %w", custody.ErrInsufficientFunds), "insufficient_funds"},
		{ledger.ErrCallFailed, "call_failed"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, test := range tests {
		if got := ledger.Kind(test.err); got != test.want {
			t.Errorf("Kind(%v) = %q, want %q", test.err, got, test.want)
		}
	}
}
