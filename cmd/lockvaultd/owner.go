// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"fmt"

	"github.com/bureau-foundation/lockvault/lib/config"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/keystore"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/permission"
	"github.com/bureau-foundation/lockvault/lib/service"
)

// ownerFromConfig builds the vault owner from whichever of the three
// owner forms the configuration names.
func ownerFromConfig(owner config.OwnerConfig) (ledger.OwnerSource, error) {
	switch {
	case owner.PublicKey != "":
		publicKey, err := keystore.ParsePublicKey(owner.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("owner.public_key: %w", err)
		}
		authorizer, err := permission.NewKeyAuthorizer(publicKey)
		if err != nil {
			return nil, fmt.Errorf("owner.public_key: %w", err)
		}
		return ledger.FixedOwner{Address: authorizer.Address(), Authorizer: authorizer}, nil

	case owner.Threshold != nil:
		keys := make([]ed25519.PublicKey, 0, len(owner.Threshold.Keys))
		for i, raw := range owner.Threshold.Keys {
			publicKey, err := keystore.ParsePublicKey(raw)
			if err != nil {
				return nil, fmt.Errorf("owner.threshold.keys[%d]: %w", i, err)
			}
			keys = append(keys, publicKey)
		}
		validator, err := permission.NewThresholdValidator(keys, owner.Threshold.Required)
		if err != nil {
			return nil, fmt.Errorf("owner.threshold: %w", err)
		}
		return programmableOwner(owner.Threshold.Name, validator), nil

	case owner.Remote != nil:
		validator := &permission.RemoteValidator{
			Client: service.NewServiceClientFromToken(owner.Remote.Socket, nil),
		}
		return programmableOwner(owner.Remote.Name, validator), nil
	}
	return nil, fmt.Errorf("no owner configured")
}

func programmableOwner(name string, validator permission.Validator) ledger.FixedOwner {
	authorizer := &permission.ProgrammableAuthorizer{
		Identity:  identity.Named(name),
		Validator: validator,
	}
	return ledger.FixedOwner{Address: authorizer.Identity, Authorizer: authorizer}
}
