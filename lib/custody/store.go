// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/sqlitepool"
)

// Store runs custody operations in their own transactions.
type Store struct {
	pool *sqlitepool.Pool
}

// NewStore returns a Store over pool. The pool's migrations must
// include Schema.
func NewStore(pool *sqlitepool.Pool) *Store {
	return &Store{pool: pool}
}

// Update runs fn inside one IMMEDIATE transaction. fn's error rolls
// the transaction back.
func (s *Store) Update(ctx context.Context, fn func(*Bank) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("custody: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("custody: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(NewBank(conn))
}

// View runs fn on a pooled connection without a write transaction.
func (s *Store) View(ctx context.Context, fn func(*Bank) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("custody: %w", err)
	}
	defer s.pool.Put(conn)
	return viewOn(conn, fn)
}

func viewOn(conn *sqlite.Conn, fn func(*Bank) error) (err error) {
	endTransaction := sqlitex.Transaction(conn)
	defer endTransaction(&err)
	return fn(NewBank(conn))
}

// Transfer moves amount of token between holders.
func (s *Store) Transfer(ctx context.Context, token, from, to identity.Address, amount uint64) error {
	return s.Update(ctx, func(bank *Bank) error {
		return bank.Transfer(token, from, to, amount)
	})
}

// BalanceOf returns holder's balance of token.
func (s *Store) BalanceOf(ctx context.Context, token, holder identity.Address) (uint64, error) {
	var amount uint64
	err := s.View(ctx, func(bank *Bank) error {
		var err error
		amount, err = bank.BalanceOf(token, holder)
		return err
	})
	return amount, err
}

// Genesis describes the initial custody state.
type Genesis struct {
	Tokens   []Token
	Balances []GenesisBalance
}

// GenesisBalance is one minted balance.
type GenesisBalance struct {
	Token  identity.Address
	Holder identity.Address
	Amount uint64
}

// ApplyGenesis registers tokens and mints balances the first time it
// runs against a database. Later calls do nothing and report false.
func (s *Store) ApplyGenesis(ctx context.Context, genesis Genesis) (applied bool, err error) {
	err = s.Update(ctx, func(bank *Bank) error {
		err := sqlitex.Execute(bank.conn, "INSERT INTO genesis (id, applied) VALUES (1, 1) ON CONFLICT (id) DO NOTHING", nil)
		if err != nil {
			return fmt.Errorf("custody: recording genesis: %w", err)
		}
		if bank.conn.Changes() == 0 {
			return nil
		}
		for _, token := range genesis.Tokens {
			if err := bank.RegisterToken(token.Address, token.Symbol); err != nil {
				return err
			}
		}
		for _, balance := range genesis.Balances {
			if err := bank.Mint(balance.Token, balance.Holder, balance.Amount); err != nil {
				return fmt.Errorf("custody: genesis balance for %s: %w", balance.Holder, err)
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
