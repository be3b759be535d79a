// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"

	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/permission"
)

// OwnerSource reports the vault's current owner and the authorizer
// whose signatures speak for them. It is consulted on every operation,
// so ownership changes take effect immediately.
type OwnerSource interface {
	Owner(ctx context.Context) (identity.Address, permission.SignatureAuthorizer, error)
}

// FixedOwner is an OwnerSource that never changes.
type FixedOwner struct {
	Address    identity.Address
	Authorizer permission.SignatureAuthorizer
}

// Owner returns the fixed owner.
func (f FixedOwner) Owner(context.Context) (identity.Address, permission.SignatureAuthorizer, error) {
	return f.Address, f.Authorizer, nil
}
