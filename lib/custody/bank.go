// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"fmt"
	"math"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Schema creates the custody tables.
const Schema = `
CREATE TABLE tokens (
	token  TEXT PRIMARY KEY,
	symbol TEXT NOT NULL
);

CREATE TABLE balances (
	token  TEXT NOT NULL,
	holder TEXT NOT NULL,
	amount INTEGER NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (token, holder)
);

CREATE TABLE genesis (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	applied INTEGER NOT NULL
);

CREATE TABLE allowances (
	token   TEXT NOT NULL,
	owner   TEXT NOT NULL,
	spender TEXT NOT NULL,
	amount  INTEGER NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (token, owner, spender)
);
`

// MaxAmount is the largest balance custody can store.
const MaxAmount = math.MaxInt64

// Bank performs custody reads and writes on one connection. It never
// begins or commits a transaction; the caller owns transaction scope.
type Bank struct {
	conn *sqlite.Conn
}

// NewBank binds a Bank to conn.
func NewBank(conn *sqlite.Conn) *Bank {
	return &Bank{conn: conn}
}

// Token is a registered token.
type Token struct {
	Address identity.Address `json:"address"`
	Symbol  string           `json:"symbol"`
}

// RegisterToken adds token to the registry. Registering an existing
// token updates its symbol.
func (b *Bank) RegisterToken(token identity.Address, symbol string) error {
	if token.IsZero() {
		return ErrZeroAddress
	}
	err := sqlitex.Execute(b.conn, `
		INSERT INTO tokens (token, symbol) VALUES (?, ?)
		ON CONFLICT (token) DO UPDATE SET symbol = excluded.symbol`,
		&sqlitex.ExecOptions{Args: []any{token.String(), symbol}})
	if err != nil {
		return fmt.Errorf("custody: registering token %s: %w", token, err)
	}
	return nil
}

// IsToken reports whether target is a registered token.
func (b *Bank) IsToken(target identity.Address) (bool, error) {
	found := false
	err := sqlitex.Execute(b.conn, "SELECT 1 FROM tokens WHERE token = ?", &sqlitex.ExecOptions{
		Args: []any{target.String()},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("custody: looking up token %s: %w", target, err)
	}
	return found, nil
}

// Tokens lists registered tokens ordered by symbol.
func (b *Bank) Tokens() ([]Token, error) {
	var tokens []Token
	err := sqlitex.Execute(b.conn, "SELECT token, symbol FROM tokens ORDER BY symbol, token", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			address, err := identity.Parse(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			tokens = append(tokens, Token{Address: address, Symbol: stmt.ColumnText(1)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("custody: listing tokens: %w", err)
	}
	return tokens, nil
}

// BalanceOf returns holder's balance of token. Unknown holders have a
// zero balance.
func (b *Bank) BalanceOf(token, holder identity.Address) (uint64, error) {
	var amount int64
	err := sqlitex.Execute(b.conn, "SELECT amount FROM balances WHERE token = ? AND holder = ?", &sqlitex.ExecOptions{
		Args: []any{token.String(), holder.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			amount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("custody: balance of %s in %s: %w", holder, token, err)
	}
	return uint64(amount), nil
}

// Mint credits amount of token to holder out of thin air. Used for
// genesis balances and development deposits.
func (b *Bank) Mint(token, holder identity.Address, amount uint64) error {
	if holder.IsZero() {
		return ErrZeroAddress
	}
	return b.credit(token, holder, amount)
}

// Transfer moves amount of token from one holder to another.
func (b *Bank) Transfer(token, from, to identity.Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	return b.credit(token, to, amount)
}

// Approve sets spender's allowance over owner's token balance.
func (b *Bank) Approve(token, owner, spender identity.Address, amount uint64) error {
	if spender.IsZero() {
		return ErrZeroAddress
	}
	if amount > MaxAmount {
		return ErrAmountOverflow
	}
	return b.setAllowance(token, owner, spender, amount)
}

// Allowance returns how much of owner's token spender may move.
func (b *Bank) Allowance(token, owner, spender identity.Address) (uint64, error) {
	var amount int64
	err := sqlitex.Execute(b.conn, "SELECT amount FROM allowances WHERE token = ? AND owner = ? AND spender = ?", &sqlitex.ExecOptions{
		Args: []any{token.String(), owner.String(), spender.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			amount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("custody: allowance of %s over %s in %s: %w", spender, owner, token, err)
	}
	return uint64(amount), nil
}

// TransferFrom moves amount of owner's token to to, spending spender's
// allowance.
func (b *Bank) TransferFrom(token, spender, owner, to identity.Address, amount uint64) error {
	allowance, err := b.Allowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowance < amount {
		return fmt.Errorf("%w: %s may move %d of %s's %s, requested %d", ErrInsufficientAllowance, spender.Short(), allowance, owner.Short(), token.Short(), amount)
	}
	if err := b.setAllowance(token, owner, spender, allowance-amount); err != nil {
		return err
	}
	return b.Transfer(token, owner, to, amount)
}

func (b *Bank) debit(token, holder identity.Address, amount uint64) error {
	balance, err := b.BalanceOf(token, holder)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, holder.Short(), balance, token.Short(), amount)
	}
	return b.setBalance(token, holder, balance-amount)
}

func (b *Bank) credit(token, holder identity.Address, amount uint64) error {
	balance, err := b.BalanceOf(token, holder)
	if err != nil {
		return err
	}
	if amount > MaxAmount-balance {
		return fmt.Errorf("%w: crediting %d to %s's %d of %s", ErrAmountOverflow, amount, holder.Short(), balance, token.Short())
	}
	return b.setBalance(token, holder, balance+amount)
}

func (b *Bank) setBalance(token, holder identity.Address, amount uint64) error {
	var err error
	if amount == 0 {
		err = sqlitex.Execute(b.conn, "DELETE FROM balances WHERE token = ? AND holder = ?", &sqlitex.ExecOptions{
			Args: []any{token.String(), holder.String()},
		})
	} else {
		err = sqlitex.Execute(b.conn, `
			INSERT INTO balances (token, holder, amount) VALUES (?, ?, ?)
			ON CONFLICT (token, holder) DO UPDATE SET amount = excluded.amount`,
			&sqlitex.ExecOptions{Args: []any{token.String(), holder.String(), int64(amount)}})
	}
	if err != nil {
		return fmt.Errorf("custody: writing balance of %s in %s: %w", holder, token, err)
	}
	return nil
}

func (b *Bank) setAllowance(token, owner, spender identity.Address, amount uint64) error {
	var err error
	if amount == 0 {
		err = sqlitex.Execute(b.conn, "DELETE FROM allowances WHERE token = ? AND owner = ? AND spender = ?", &sqlitex.ExecOptions{
			Args: []any{token.String(), owner.String(), spender.String()},
		})
	} else {
		err = sqlitex.Execute(b.conn, `
			INSERT INTO allowances (token, owner, spender, amount) VALUES (?, ?, ?, ?)
			ON CONFLICT (token, owner, spender) DO UPDATE SET amount = excluded.amount`,
			&sqlitex.ExecOptions{Args: []any{token.String(), owner.String(), spender.String(), int64(amount)}})
	}
	if err != nil {
		return fmt.Errorf("custody: writing allowance of %s over %s in %s: %w", spender, owner, token, err)
	}
	return nil
}
