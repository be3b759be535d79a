// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import "errors"

var (
	// ErrInsufficientFunds is returned when a debit exceeds the
	// holder's balance.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")

	// ErrInsufficientAllowance is returned by transferFrom when the
	// spender's allowance is too small.
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")

	// ErrAmountOverflow is returned when a credit would push a balance
	// past the storable range.
	ErrAmountOverflow = errors.New("custody: amount overflow")

	// ErrZeroAddress is returned when a transfer names the zero address.
	ErrZeroAddress = errors.New("custody: zero address")

	// ErrNoContract is returned for a non-empty payload sent to a
	// target with no contract.
	ErrNoContract = errors.New("custody: target has no contract")

	// ErrUnknownSelector is returned when a contract does not
	// implement the payload's selector.
	ErrUnknownSelector = errors.New("custody: unknown selector")

	// ErrMalformedCall is returned when a payload cannot be decoded.
	ErrMalformedCall = errors.New("custody: malformed call")
)
