// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/permission"
	"github.com/bureau-foundation/lockvault/lib/sqlitepool"
)

// DefaultHookTimeout bounds a rage-quit hook call when Config leaves
// HookTimeout unset.
const DefaultHookTimeout = 2 * time.Second

// Custody is the token environment the vault holds balances in. Both
// methods run on the vault's connection, inside its transaction when
// there is one.
type Custody interface {
	HeldBalance(ctx context.Context, conn *sqlite.Conn, token, holder identity.Address) (uint64, error)
	Call(ctx context.Context, conn *sqlite.Conn, caller, target identity.Address, value uint64, payload []byte) ([]byte, error)
}

// Config holds the dependencies of a Vault.
type Config struct {
	// Pool is the vault database, migrated with Migrations.
	Pool *sqlitepool.Pool

	// Address is the vault's own identity: the holder of its custody
	// balances and the vault field of every permission message.
	Address identity.Address

	Owner   OwnerSource
	Custody Custody

	// Hooks resolves rage-quit hooks. Nil means no delegate has one.
	Hooks HookResolver

	// DenyList defaults to NewSelectorDenyList().
	DenyList *SelectorDenyList

	// HookTimeout defaults to DefaultHookTimeout.
	HookTimeout time.Duration

	// Events defaults to a LogSink over Logger.
	Events EventSink

	Clock  clock.Clock
	Logger *slog.Logger
}

// Vault is the lock ledger. All methods are safe for concurrent use.
type Vault struct {
	pool        *sqlitepool.Pool
	address     identity.Address
	owner       OwnerSource
	custody     Custody
	hooks       HookResolver
	denyList    *SelectorDenyList
	hookTimeout time.Duration
	events      EventSink
	clock       clock.Clock
	logger      *slog.Logger

	// mu serializes mutating operations. Take it with acquire.
	mu sync.Mutex

	// outbound is set while the holder of mu waits on code outside the
	// vault: an external call's callee or a programmable owner's
	// validator.
	outbound atomic.Bool
}

// Open validates cfg and binds the vault to its database. The first
// Open records cfg.Address; later Opens must use the same address.
func Open(ctx context.Context, cfg Config) (*Vault, error) {
	switch {
	case cfg.Pool == nil:
		return nil, errors.New("ledger: Pool is required")
	case cfg.Address.IsZero():
		return nil, errors.New("ledger: Address is required")
	case cfg.Owner == nil:
		return nil, errors.New("ledger: Owner is required")
	case cfg.Custody == nil:
		return nil, errors.New("ledger: Custody is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	vault := &Vault{
		pool:        cfg.Pool,
		address:     cfg.Address,
		owner:       cfg.Owner,
		custody:     cfg.Custody,
		hooks:       cfg.Hooks,
		denyList:    cfg.DenyList,
		hookTimeout: cfg.HookTimeout,
		events:      cfg.Events,
		clock:       cfg.Clock,
		logger:      logger,
	}
	if vault.hooks == nil {
		vault.hooks = StaticHooks(nil)
	}
	if vault.denyList == nil {
		vault.denyList = NewSelectorDenyList()
	}
	if vault.hookTimeout <= 0 {
		vault.hookTimeout = DefaultHookTimeout
	}
	if vault.events == nil {
		vault.events = LogSink{Logger: logger}
	}
	if vault.clock == nil {
		vault.clock = clock.Real()
	}

	err := vault.update(ctx, func(conn *sqlite.Conn) error {
		return initVaultState(conn, cfg.Address)
	})
	if err != nil {
		return nil, err
	}
	return vault, nil
}

// Address returns the vault's identity.
func (v *Vault) Address() identity.Address { return v.address }

// DenyList returns the vault's selector deny list.
func (v *Vault) DenyList() *SelectorDenyList { return v.denyList }

// update runs fn in one IMMEDIATE transaction. Any error, including a
// panic in fn, rolls back.
func (v *Vault) update(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := v.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer v.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ledger: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(conn)
}

// view runs fn in a read transaction on a pooled connection.
func (v *Vault) view(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := v.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer v.pool.Put(conn)

	endTransaction := sqlitex.Transaction(conn)
	defer endTransaction(&err)

	return fn(conn)
}

// acquire takes v.mu. While the holder waits on an outbound call it
// fails with ErrReentrantCall instead of blocking: a call that arrives
// then may come from the callee itself, and waiting would deadlock.
func (v *Vault) acquire() error {
	if v.mu.TryLock() {
		return nil
	}
	if v.outbound.Load() {
		return fmt.Errorf("%w: vault is waiting on an outbound call", ErrReentrantCall)
	}
	v.mu.Lock()
	return nil
}

// callOut runs fn with the outbound flag set and ctx marked as
// descending from this vault. The caller holds v.mu.
func (v *Vault) callOut(ctx context.Context, fn func(ctx context.Context) error) error {
	v.outbound.Store(true)
	defer v.outbound.Store(false)
	return fn(context.WithValue(ctx, reentryKey{}, v))
}

// checkSignature verifies signature over message for the current
// owner. Authorizers other than a plain key run as outbound calls.
func (v *Vault) checkSignature(ctx context.Context, message permission.Message, signature []byte) error {
	_, authorizer, err := v.owner.Owner(ctx)
	if err != nil {
		return fmt.Errorf("ledger: resolving owner: %w", err)
	}

	if _, local := authorizer.(*permission.KeyAuthorizer); local {
		err = permission.Authorize(ctx, authorizer, message, signature)
	} else {
		err = v.callOut(ctx, func(ctx context.Context) error {
			return permission.Authorize(ctx, authorizer, message, signature)
		})
	}
	if err != nil {
		v.logger.Debug("permission rejected",
			"operation", message.Operation,
			"delegate", message.Delegate,
			"token", message.Token,
			"nonce", message.Nonce,
			"error", err,
		)
		return err
	}
	return nil
}

// authorizeOwner checks an owner-signed message at the current owner
// nonce and returns that nonce. The caller holds v.mu and advances the
// owner nonce in the transaction that applies the operation.
func (v *Vault) authorizeOwner(ctx context.Context, message permission.Message, signature []byte) (uint64, error) {
	var nonce uint64
	err := v.view(ctx, func(conn *sqlite.Conn) error {
		var err error
		nonce, err = readOwnerNonce(conn)
		return err
	})
	if err != nil {
		return 0, err
	}

	message.Vault = v.address
	message.Nonce = nonce
	if err := v.checkSignature(ctx, message, signature); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (v *Vault) requireOwner(ctx context.Context, caller identity.Address) error {
	owner, _, err := v.owner.Owner(ctx)
	if err != nil {
		return fmt.Errorf("ledger: resolving owner: %w", err)
	}
	if caller != owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Short())
	}
	return nil
}
