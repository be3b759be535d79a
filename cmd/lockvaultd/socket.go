// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/lockvault/lib/calltoken"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/codec"
	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/service"
	"github.com/bureau-foundation/lockvault/lib/vaultapi"
	"github.com/bureau-foundation/lockvault/lib/version"
)

// vaultService adapts the vault to socket actions.
type vaultService struct {
	vault     *ledger.Vault
	custody   *custody.Store
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

func (s *vaultService) registerActions(server *service.SocketServer) {
	server.Handle(vaultapi.ActionStatus, s.handleStatus)

	server.HandleAuth(vaultapi.ActionLock, s.handleLock)
	server.HandleAuth(vaultapi.ActionUnlock, s.handleUnlock)
	server.HandleAuth(vaultapi.ActionRageQuit, s.handleRageQuit)
	server.HandleAuth(vaultapi.ActionExternalCall, s.handleExternalCall)
	server.HandleAuth(vaultapi.ActionTransfer, s.handleTransfer)

	server.HandleAuth(vaultapi.ActionNonce, s.handleNonce)
	server.HandleAuth(vaultapi.ActionLocks, s.handleLocks)
	server.HandleAuth(vaultapi.ActionLockAt, s.handleLockAt)
	server.HandleAuth(vaultapi.ActionBalanceDelegated, s.handleBalanceDelegated)
	server.HandleAuth(vaultapi.ActionBalanceLocked, s.handleBalanceLocked)
	server.HandleAuth(vaultapi.ActionCheckBalances, s.handleCheckBalances)
	server.HandleAuth(vaultapi.ActionBalanceOf, s.handleBalanceOf)
}

// --- Requests ---

type lockRequest struct {
	Token     identity.Address `cbor:"token"`
	Amount    uint64           `cbor:"amount"`
	Signature []byte           `cbor:"signature"`
}

// Owner-only requests carry an owner signature when the caller is not
// the owner itself.

type rageQuitRequest struct {
	Delegate  identity.Address `cbor:"delegate"`
	Token     identity.Address `cbor:"token"`
	Signature []byte           `cbor:"signature,omitempty"`
}

type externalCallRequest struct {
	Target    identity.Address `cbor:"target"`
	Value     uint64           `cbor:"value"`
	Payload   []byte           `cbor:"payload"`
	Signature []byte           `cbor:"signature,omitempty"`
}

type transferRequest struct {
	Token  identity.Address `cbor:"token"`
	To     identity.Address `cbor:"to"`
	Amount uint64           `cbor:"amount"`
}

func viewOf(record ledger.LockRecord) vaultapi.LockView {
	return vaultapi.LockView{
		Delegate:  record.Delegate,
		Token:     record.Token,
		Balance:   record.Balance,
		CreatedAt: record.CreatedAt.Unix(),
		UpdatedAt: record.UpdatedAt.Unix(),
	}
}

type lockAtRequest struct {
	Index int `cbor:"index"`
}

type pairRequest struct {
	Delegate identity.Address `cbor:"delegate"`
	Token    identity.Address `cbor:"token"`
}

type tokenRequest struct {
	Token identity.Address `cbor:"token"`
}

type balanceOfRequest struct {
	Token  identity.Address `cbor:"token"`
	Holder identity.Address `cbor:"holder"`
}

func decodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

// --- Handlers ---

func (s *vaultService) handleStatus(ctx context.Context, _ []byte) (any, error) {
	owner, err := s.vault.Owner(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := s.vault.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	ownerNonce, err := s.vault.OwnerNonce(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.vault.LockCount(ctx)
	if err != nil {
		return nil, err
	}
	return vaultapi.StatusResponse{
		Vault:         s.vault.Address(),
		Owner:         owner,
		Nonce:         nonce,
		OwnerNonce:    ownerNonce,
		Locks:         count,
		UptimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
		Build:         version.Current(),
	}, nil
}

func (s *vaultService) handleLock(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
	var request lockRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Token.IsZero() {
		return nil, errors.New("missing required field: token")
	}
	if err := s.vault.Lock(ctx, token.Subject, request.Token, request.Amount, request.Signature); err != nil {
		return nil, err
	}
	return s.currentNonce(ctx)
}

func (s *vaultService) handleUnlock(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
	var request lockRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Token.IsZero() {
		return nil, errors.New("missing required field: token")
	}
	if err := s.vault.Unlock(ctx, token.Subject, request.Token, request.Amount, request.Signature); err != nil {
		return nil, err
	}
	return s.currentNonce(ctx)
}

func (s *vaultService) currentNonce(ctx context.Context) (any, error) {
	nonce, err := s.vault.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	return vaultapi.NonceResponse{Nonce: nonce}, nil
}

func (s *vaultService) handleRageQuit(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
	var request rageQuitRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	var result ledger.RageQuitResult
	var err error
	if len(request.Signature) > 0 {
		result, err = s.vault.SignedRageQuit(ctx, request.Delegate, request.Token, request.Signature)
	} else {
		result, err = s.vault.RageQuit(ctx, token.Subject, request.Delegate, request.Token)
	}
	if err != nil {
		return nil, err
	}
	return vaultapi.RageQuitResponse{
		Delegate: result.Delegate,
		Token:    result.Token,
		Released: result.Released,
		HasHook:  result.HasHook,
		Notified: result.Notified,
		Reason:   result.Reason,
	}, nil
}

func (s *vaultService) handleExternalCall(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
	var request externalCallRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Target.IsZero() {
		return nil, errors.New("missing required field: target")
	}
	var result []byte
	var err error
	if len(request.Signature) > 0 {
		result, err = s.vault.SignedExternalCall(ctx, request.Target, request.Value, request.Payload, request.Signature)
	} else {
		result, err = s.vault.ExternalCall(ctx, token.Subject, request.Target, request.Value, request.Payload)
	}
	if err != nil {
		return nil, err
	}
	return vaultapi.ExternalCallResponse{Result: result}, nil
}

// handleTransfer moves the caller's own custody balance, typically a
// deposit into the vault.
func (s *vaultService) handleTransfer(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
	var request transferRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if err := s.custody.Transfer(ctx, request.Token, token.Subject, request.To, request.Amount); err != nil {
		return nil, err
	}
	s.logger.Info("custody transfer",
		"token", request.Token,
		"from", token.Subject,
		"to", request.To,
		"amount", request.Amount,
	)
	return nil, nil
}

func (s *vaultService) handleNonce(ctx context.Context, _ *calltoken.Token, _ []byte) (any, error) {
	return s.currentNonce(ctx)
}

func (s *vaultService) handleLocks(ctx context.Context, _ *calltoken.Token, _ []byte) (any, error) {
	records, err := s.vault.Locks(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]vaultapi.LockView, 0, len(records))
	for _, record := range records {
		views = append(views, viewOf(record))
	}
	return vaultapi.LocksResponse{Locks: views}, nil
}

func (s *vaultService) handleLockAt(ctx context.Context, _ *calltoken.Token, raw []byte) (any, error) {
	var request lockAtRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	record, err := s.vault.LockAt(ctx, request.Index)
	if err != nil {
		return nil, err
	}
	return viewOf(record), nil
}

func (s *vaultService) handleBalanceDelegated(ctx context.Context, _ *calltoken.Token, raw []byte) (any, error) {
	var request pairRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	amount, err := s.vault.BalanceDelegated(ctx, request.Delegate, request.Token)
	if err != nil {
		return nil, err
	}
	return vaultapi.AmountResponse{Amount: amount}, nil
}

func (s *vaultService) handleBalanceLocked(ctx context.Context, _ *calltoken.Token, raw []byte) (any, error) {
	var request tokenRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	amount, err := s.vault.BalanceLocked(ctx, request.Token)
	if err != nil {
		return nil, err
	}
	return vaultapi.AmountResponse{Amount: amount}, nil
}

func (s *vaultService) handleCheckBalances(ctx context.Context, _ *calltoken.Token, _ []byte) (any, error) {
	ok, err := s.vault.CheckBalances(ctx)
	if err != nil {
		return nil, err
	}
	return vaultapi.CheckResponse{OK: ok}, nil
}

func (s *vaultService) handleBalanceOf(ctx context.Context, _ *calltoken.Token, raw []byte) (any, error) {
	var request balanceOfRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	amount, err := s.custody.BalanceOf(ctx, request.Token, request.Holder)
	if err != nil {
		return nil, err
	}
	return vaultapi.AmountResponse{Amount: amount}, nil
}
