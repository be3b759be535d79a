// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/codec"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Call is one outbound call as seen by the callee.
type Call struct {
	Caller  identity.Address
	Target  identity.Address
	Value   uint64
	Payload []byte
}

// Contract executes calls addressed to a target. Contracts run on the
// caller's connection and inside the caller's transaction; an error
// aborts the whole call.
type Contract interface {
	Invoke(ctx context.Context, bank *Bank, call Call) ([]byte, error)
}

// ContractFunc adapts a function to Contract.
type ContractFunc func(ctx context.Context, bank *Bank, call Call) ([]byte, error)

// Invoke calls f.
func (f ContractFunc) Invoke(ctx context.Context, bank *Bank, call Call) ([]byte, error) {
	return f(ctx, bank, call)
}

// Argument blocks for the TokenContract methods.
type (
	TransferArgs struct {
		To     identity.Address `cbor:"to"`
		Amount uint64           `cbor:"amount"`
	}

	ApproveArgs struct {
		Spender identity.Address `cbor:"spender"`
		Amount  uint64           `cbor:"amount"`
	}

	TransferFromArgs struct {
		From   identity.Address `cbor:"from"`
		To     identity.Address `cbor:"to"`
		Amount uint64           `cbor:"amount"`
	}

	BalanceOfArgs struct {
		Holder identity.Address `cbor:"holder"`
	}

	// BalanceOfResult is the CBOR result of balanceOf.
	BalanceOfResult struct {
		Amount uint64 `cbor:"amount"`
	}
)

// TokenContract implements the fungible-token methods for whichever
// token the call targets.
type TokenContract struct{}

// Invoke dispatches on the payload selector.
func (TokenContract) Invoke(_ context.Context, bank *Bank, call Call) ([]byte, error) {
	selector, args, err := SplitPayload(call.Payload)
	if err != nil {
		return nil, err
	}
	token := call.Target

	switch selector {
	case SelectorTransfer:
		var decoded TransferArgs
		if err := DecodeArgs(args, &decoded); err != nil {
			return nil, err
		}
		return nil, bank.Transfer(token, call.Caller, decoded.To, decoded.Amount)

	case SelectorApprove:
		var decoded ApproveArgs
		if err := DecodeArgs(args, &decoded); err != nil {
			return nil, err
		}
		return nil, bank.Approve(token, call.Caller, decoded.Spender, decoded.Amount)

	case SelectorTransferFrom:
		var decoded TransferFromArgs
		if err := DecodeArgs(args, &decoded); err != nil {
			return nil, err
		}
		return nil, bank.TransferFrom(token, call.Caller, decoded.From, decoded.To, decoded.Amount)

	case SelectorBalanceOf:
		var decoded BalanceOfArgs
		if err := DecodeArgs(args, &decoded); err != nil {
			return nil, err
		}
		amount, err := bank.BalanceOf(token, decoded.Holder)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(BalanceOfResult{Amount: amount})

	default:
		return nil, fmt.Errorf("%w: %s on token %s", ErrUnknownSelector, selector, token.Short())
	}
}
