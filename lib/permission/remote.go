// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"fmt"
)

// ValidateAction is the socket action a remote validator serves.
const ValidateAction = "is-valid-signature"

// Caller is the subset of the socket client RemoteValidator needs.
// *service.ServiceClient satisfies it.
type Caller interface {
	Call(ctx context.Context, action string, fields map[string]any, result any) error
}

// RemoteValidator asks another service whether a signature is valid.
// The service receives {hash, signature} and answers {valid}.
type RemoteValidator struct {
	Client Caller
}

// ValidateResponse is the reply to ValidateAction.
type ValidateResponse struct {
	Valid bool `cbor:"valid"`
}

// Validate performs one ValidateAction round trip.
func (r *RemoteValidator) Validate(ctx context.Context, hash Hash, signature []byte) (bool, error) {
	var response ValidateResponse
	err := r.Client.Call(ctx, ValidateAction, map[string]any{
		"hash":      hash[:],
		"signature": signature,
	}, &response)
	if err != nil {
		return false, fmt.Errorf("permission: remote validator: %w", err)
	}
	return response.Valid, nil
}
