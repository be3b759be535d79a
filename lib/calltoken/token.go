// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package calltoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/lockvault/lib/codec"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

const signatureSize = ed25519.SignatureSize

// Audience is the audience every lockvault daemon expects.
const Audience = "lockvault"

// MaxLifetime is the longest validity window a token may claim.
const MaxLifetime = 5 * time.Minute

// ClockSkew is how far in the future IssuedAt may be.
const ClockSkew = 30 * time.Second

// Token is the CBOR payload of a caller token.
type Token struct {
	// Subject is the caller's address. It must equal
	// identity.FromPublicKey(PublicKey).
	Subject identity.Address `cbor:"1,keyasint"`

	PublicKey []byte `cbor:"2,keyasint"`

	// Audience scopes the token to one kind of service.
	Audience string `cbor:"3,keyasint"`

	// ID is a random hex string, unique per token.
	ID string `cbor:"4,keyasint"`

	// IssuedAt and ExpiresAt are Unix seconds.
	IssuedAt  int64 `cbor:"5,keyasint"`
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Errors returned by Verify.
var (
	ErrTokenTooShort    = errors.New("calltoken: token too short for signature")
	ErrInvalidSignature = errors.New("calltoken: invalid Ed25519 signature")
	ErrSubjectMismatch  = errors.New("calltoken: subject does not match signing key")
	ErrAudienceMismatch = errors.New("calltoken: audience does not match")
	ErrTokenExpired     = errors.New("calltoken: token has expired")
	ErrNotYetValid      = errors.New("calltoken: token issued in the future")
	ErrLifetimeTooLong  = errors.New("calltoken: token lifetime exceeds maximum")
	ErrTokenReplayed    = errors.New("calltoken: token already used")
)

// Mint signs token and returns its wire form.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("calltoken: encoding token payload: %w", err)
	}
	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}

// Issue mints a fresh token for privateKey's identity, valid for ttl
// from now.
func Issue(privateKey ed25519.PrivateKey, audience string, ttl time.Duration, now time.Time) ([]byte, error) {
	if ttl <= 0 || ttl > MaxLifetime {
		return nil, fmt.Errorf("calltoken: ttl %s outside (0, %s]", ttl, MaxLifetime)
	}
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("calltoken: generating token ID: %w", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)
	return Mint(privateKey, &Token{
		Subject:   identity.FromPublicKey(publicKey),
		PublicKey: publicKey,
		Audience:  audience,
		ID:        hex.EncodeToString(idBytes),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
}

// VerifyAt checks the signature, subject binding, audience, and
// validity window of tokenBytes at now. It does not consult a replay
// cache; see Verifier.
func VerifyAt(tokenBytes []byte, audience string, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}
	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("calltoken: decoding token payload: %w", err)
	}
	if len(token.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key has %d bytes", ErrInvalidSignature, len(token.PublicKey))
	}
	if !ed25519.Verify(token.PublicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}
	if token.Subject != identity.FromPublicKey(token.PublicKey) {
		return nil, ErrSubjectMismatch
	}
	if token.Audience != audience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, audience)
	}
	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if token.IssuedAt > now.Add(ClockSkew).Unix() {
		return nil, ErrNotYetValid
	}
	if time.Duration(token.ExpiresAt-token.IssuedAt)*time.Second > MaxLifetime {
		return nil, ErrLifetimeTooLong
	}
	return &token, nil
}
