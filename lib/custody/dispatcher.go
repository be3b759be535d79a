// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Native is the value-bearing asset moved by a call's value.
var Native = identity.Named("native")

// Dispatcher routes outbound calls to contracts.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	contracts map[identity.Address]Contract
}

// NewDispatcher returns a Dispatcher with no explicitly registered
// contracts. Registered tokens are always served by TokenContract.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		logger:    logger,
		contracts: make(map[identity.Address]Contract),
	}
}

// Register installs contract as the handler for target. It takes
// precedence over TokenContract.
//
// A contract invoked by a vault's external call runs while that vault
// holds its writer lock. Calls it makes back into the vault fail with
// ErrReentrantCall from the ledger package rather than blocking.
func (d *Dispatcher) Register(target identity.Address, contract Contract) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contracts[target] = contract
}

// HeldBalance returns holder's balance of token.
func (d *Dispatcher) HeldBalance(_ context.Context, conn *sqlite.Conn, token, holder identity.Address) (uint64, error) {
	return NewBank(conn).BalanceOf(token, holder)
}

// Call moves value of Native from caller to target and, when payload
// is non-empty, invokes target's contract. It runs on conn without
// opening a transaction.
func (d *Dispatcher) Call(ctx context.Context, conn *sqlite.Conn, caller, target identity.Address, value uint64, payload []byte) ([]byte, error) {
	bank := NewBank(conn)

	if value > 0 {
		if err := bank.Transfer(Native, caller, target, value); err != nil {
			return nil, fmt.Errorf("custody: moving call value: %w", err)
		}
	}
	if len(payload) == 0 {
		return nil, nil
	}

	contract, err := d.lookup(bank, target)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("dispatching call",
		"caller", caller,
		"target", target,
		"value", value,
		"payload_bytes", len(payload),
	)
	return contract.Invoke(ctx, bank, Call{
		Caller:  caller,
		Target:  target,
		Value:   value,
		Payload: payload,
	})
}

func (d *Dispatcher) lookup(bank *Bank, target identity.Address) (Contract, error) {
	d.mu.RLock()
	contract, registered := d.contracts[target]
	d.mu.RUnlock()
	if registered {
		return contract, nil
	}

	isToken, err := bank.IsToken(target)
	if err != nil {
		return nil, err
	}
	if isToken {
		return TokenContract{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoContract, target)
}
