// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Operation is the action a permission authorizes.
type Operation string

const (
	OperationLock   Operation = "lock"
	OperationUnlock Operation = "unlock"

	// OperationRageQuit and OperationExternalCall are signed by the
	// owner for itself. They are ordered by the vault's owner nonce,
	// not its sequence number.
	OperationRageQuit     Operation = "rageQuit"
	OperationExternalCall Operation = "externalCall"
)

// Valid reports whether op is one of the defined operations.
func (op Operation) Valid() bool {
	switch op {
	case OperationLock, OperationUnlock, OperationRageQuit, OperationExternalCall:
		return true
	}
	return false
}

// OwnerOnly reports whether op authorizes an owner action rather than
// a delegate's lock or unlock.
func (op Operation) OwnerOnly() bool {
	return op == OperationRageQuit || op == OperationExternalCall
}

// HashSize is the byte length of a permission hash.
const HashSize = 32

// Hash is a permission hash.
type Hash [HashSize]byte

// String returns the "0x"-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Message is the content an owner signs to authorize one operation.
//
// For externalCall, Delegate carries the call target, Amount the value
// sent, and Payload the call data; Token is unused. Payload is ignored
// by every other operation.
type Message struct {
	Operation Operation
	Vault     identity.Address
	Delegate  identity.Address
	Token     identity.Address
	Amount    uint64
	Nonce     uint64
	Payload   []byte
}

// Bytes returns the canonical encoding of m. See the package
// documentation for the layout.
func (m Message) Bytes() []byte {
	out := make([]byte, 0, len(m.Operation)+3*identity.Size+16+HashSize)
	out = append(out, m.Operation...)
	out = append(out, m.Vault[:]...)
	out = append(out, m.Delegate[:]...)
	out = append(out, m.Token[:]...)
	out = binary.BigEndian.AppendUint64(out, m.Amount)
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	if m.Operation == OperationExternalCall {
		payload := sha3.Sum256(m.Payload)
		out = append(out, payload[:]...)
	}
	return out
}

// Hash returns the SHA3-256 permission hash of m.
func (m Message) Hash() Hash {
	return Hash(sha3.Sum256(m.Bytes()))
}

// Sign returns the owner's ed25519 signature over m's permission hash.
func Sign(privateKey ed25519.PrivateKey, m Message) ([]byte, error) {
	if !m.Operation.Valid() {
		return nil, fmt.Errorf("permission: unknown operation %q", m.Operation)
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("permission: private key has %d bytes, want %d", len(privateKey), ed25519.PrivateKeySize)
	}
	hash := m.Hash()
	return ed25519.Sign(privateKey, hash[:]), nil
}
