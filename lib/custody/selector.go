// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/bureau-foundation/lockvault/lib/codec"
)

// SelectorSize is the byte length of a method selector.
const SelectorSize = 4

// Selector identifies the method a payload invokes.
type Selector [SelectorSize]byte

// SelectorOf returns the selector for a method signature.
func SelectorOf(signature string) Selector {
	sum := sha3.Sum256([]byte(signature))
	var selector Selector
	copy(selector[:], sum[:SelectorSize])
	return selector
}

// Method signatures implemented by TokenContract.
const (
	TransferSignature     = "transfer(address,uint64)"
	ApproveSignature      = "approve(address,uint64)"
	TransferFromSignature = "transferFrom(address,address,uint64)"
	BalanceOfSignature    = "balanceOf(address)"
)

var (
	SelectorTransfer     = SelectorOf(TransferSignature)
	SelectorApprove      = SelectorOf(ApproveSignature)
	SelectorTransferFrom = SelectorOf(TransferFromSignature)
	SelectorBalanceOf    = SelectorOf(BalanceOfSignature)
)

// String returns the "0x"-prefixed hex form.
func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSelector accepts either 8 hex digits (optionally "0x"-prefixed)
// or a method signature containing "(".
func ParseSelector(raw string) (Selector, error) {
	if strings.Contains(raw, "(") {
		return SelectorOf(raw), nil
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return Selector{}, fmt.Errorf("custody: selector %q: %w", raw, err)
	}
	if len(decoded) != SelectorSize {
		return Selector{}, fmt.Errorf("custody: selector %q has %d bytes, want %d", raw, len(decoded), SelectorSize)
	}
	var selector Selector
	copy(selector[:], decoded)
	return selector, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting the
// forms ParseSelector accepts.
func (s *Selector) UnmarshalText(data []byte) error {
	parsed, err := ParseSelector(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SplitPayload separates a payload into its selector and argument
// block. Payloads shorter than a selector are malformed.
func SplitPayload(payload []byte) (Selector, []byte, error) {
	if len(payload) < SelectorSize {
		return Selector{}, nil, fmt.Errorf("%w: payload has %d bytes, selector needs %d", ErrMalformedCall, len(payload), SelectorSize)
	}
	var selector Selector
	copy(selector[:], payload[:SelectorSize])
	return selector, payload[SelectorSize:], nil
}

// EncodeCall builds a payload invoking selector with args.
func EncodeCall(selector Selector, args any) ([]byte, error) {
	encoded, err := codec.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("custody: encoding call arguments: %w", err)
	}
	return append(selector[:], encoded...), nil
}

// DecodeArgs decodes a CBOR argument block, rejecting unknown fields.
func DecodeArgs(args []byte, v any) error {
	if err := codec.UnmarshalStrict(args, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedCall, err)
	}
	return nil
}

// Bytes returns a copy of the selector bytes.
func (s Selector) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}
