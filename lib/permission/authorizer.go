// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// ErrInvalidPermission is returned when a signature does not authorize
// the requested operation.
var ErrInvalidPermission = errors.New("permission: invalid permission")

// SignatureAuthorizer decides whether signature over hash speaks for an
// identity. Implementations may block (a remote validator does network
// I/O) and must honor ctx.
type SignatureAuthorizer interface {
	IsValidSignature(ctx context.Context, hash Hash, signature []byte) (bool, error)
}

// Authorize checks that signature authorizes message according to
// authorizer. Any rejection or validator failure is reported as
// ErrInvalidPermission; validator failures are wrapped so the cause
// stays inspectable.
func Authorize(ctx context.Context, authorizer SignatureAuthorizer, message Message, signature []byte) error {
	if authorizer == nil {
		return fmt.Errorf("%w: no authorizer for owner", ErrInvalidPermission)
	}
	if !message.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidPermission, message.Operation)
	}
	valid, err := authorizer.IsValidSignature(ctx, message.Hash(), signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPermission, err)
	}
	if !valid {
		return ErrInvalidPermission
	}
	return nil
}

// KeyAuthorizer accepts ed25519 signatures from a single key.
type KeyAuthorizer struct {
	publicKey ed25519.PublicKey
}

// NewKeyAuthorizer returns an authorizer for publicKey.
func NewKeyAuthorizer(publicKey ed25519.PublicKey) (*KeyAuthorizer, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("permission: public key has %d bytes, want %d", len(publicKey), ed25519.PublicKeySize)
	}
	return &KeyAuthorizer{publicKey: publicKey}, nil
}

// Address returns the identity controlled by the key.
func (k *KeyAuthorizer) Address() identity.Address {
	return identity.FromPublicKey(k.publicKey)
}

// IsValidSignature reports whether signature is a valid ed25519
// signature over hash.
func (k *KeyAuthorizer) IsValidSignature(_ context.Context, hash Hash, signature []byte) (bool, error) {
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(k.publicKey, hash[:], signature), nil
}

// Validator is the acceptance logic of a programmable identity.
type Validator interface {
	Validate(ctx context.Context, hash Hash, signature []byte) (bool, error)
}

// ProgrammableAuthorizer is an identity whose signatures are judged by
// a Validator rather than a single key.
type ProgrammableAuthorizer struct {
	Identity  identity.Address
	Validator Validator
}

// Address returns the identity the authorizer speaks for.
func (p *ProgrammableAuthorizer) Address() identity.Address {
	return p.Identity
}

// IsValidSignature delegates to the Validator. A panicking validator is
// reported as an error rather than crashing the caller.
func (p *ProgrammableAuthorizer) IsValidSignature(ctx context.Context, hash Hash, signature []byte) (valid bool, err error) {
	if p.Validator == nil {
		return false, fmt.Errorf("permission: programmable identity %s has no validator", p.Identity.Short())
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			valid = false
			err = fmt.Errorf("permission: validator for %s panicked: %v", p.Identity.Short(), recovered)
		}
	}()
	return p.Validator.Validate(ctx, hash, signature)
}
