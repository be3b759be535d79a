// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/codec"
)

// ThresholdSignature is one signer's contribution to a threshold
// signature bundle.
type ThresholdSignature struct {
	Index     int    `cbor:"index"`
	Signature []byte `cbor:"signature"`
}

// ThresholdValidator accepts a bundle of signatures when at least
// Threshold distinct keys from Keys have validly signed the hash.
type ThresholdValidator struct {
	keys      []ed25519.PublicKey
	threshold int
}

// NewThresholdValidator returns an m-of-n validator over keys.
func NewThresholdValidator(keys []ed25519.PublicKey, threshold int) (*ThresholdValidator, error) {
	if len(keys) == 0 {
		return nil, errors.New("permission: threshold validator needs at least one key")
	}
	if threshold < 1 || threshold > len(keys) {
		return nil, fmt.Errorf("permission: threshold %d out of range [1, %d]", threshold, len(keys))
	}
	for index, key := range keys {
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("permission: key %d has %d bytes, want %d", index, len(key), ed25519.PublicKeySize)
		}
	}
	return &ThresholdValidator{keys: keys, threshold: threshold}, nil
}

// Validate decodes signature as a CBOR list of ThresholdSignature and
// counts distinct valid signers. A malformed bundle (undecodable,
// index out of range, repeated index) is an error; a well-formed
// bundle with too few valid signatures is a plain rejection.
func (v *ThresholdValidator) Validate(_ context.Context, hash Hash, signature []byte) (bool, error) {
	var bundle []ThresholdSignature
	if err := codec.UnmarshalStrict(signature, &bundle); err != nil {
		return false, fmt.Errorf("permission: decoding threshold signature: %w", err)
	}

	seen := make(map[int]bool, len(bundle))
	valid := 0
	for _, entry := range bundle {
		if entry.Index < 0 || entry.Index >= len(v.keys) {
			return false, fmt.Errorf("permission: threshold signer index %d out of range [0, %d)", entry.Index, len(v.keys))
		}
		if seen[entry.Index] {
			return false, fmt.Errorf("permission: threshold signer index %d repeated", entry.Index)
		}
		seen[entry.Index] = true
		if len(entry.Signature) == ed25519.SignatureSize && ed25519.Verify(v.keys[entry.Index], hash[:], entry.Signature) {
			valid++
		}
	}
	return valid >= v.threshold, nil
}

// EncodeThresholdSignature encodes a bundle for ThresholdValidator.
func EncodeThresholdSignature(bundle []ThresholdSignature) ([]byte, error) {
	data, err := codec.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("permission: encoding threshold signature: %w", err)
	}
	return data, nil
}
