// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the byte length of an Address.
const Size = 20

// Domain tags keep key-derived and name-derived addresses in disjoint
// spaces.
var (
	publicKeyDomain = []byte("lockvault.identity.ed25519.v1")
	nameDomain      = []byte("lockvault.identity.name.v1")
)

// Address identifies a party or a token. The zero value is not a valid
// identity; use IsZero to check.
type Address [Size]byte

// FromPublicKey returns the address controlled by an ed25519 public key.
func FromPublicKey(publicKey ed25519.PublicKey) Address {
	return derive(publicKeyDomain, publicKey)
}

// Named returns the address of a named system identity such as a token.
func Named(name string) Address {
	return derive(nameDomain, []byte(name))
}

func derive(domain, material []byte) Address {
	hasher := blake3.New()
	hasher.Write(domain)
	hasher.Write(material)
	var address Address
	copy(address[:], hasher.Sum(nil))
	return address
}

// Parse parses the "0x"-prefixed hex form. The prefix is optional.
func Parse(raw string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(trimmed) != 2*Size {
		return Address{}, fmt.Errorf("identity: address %q has %d hex digits, want %d", raw, len(trimmed), 2*Size)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("identity: address %q: %w", raw, err)
	}
	var address Address
	copy(address[:], decoded)
	return address, nil
}

// ParseRef parses either the hex form or "@name" (see Named).
func ParseRef(raw string) (Address, error) {
	if name, ok := strings.CutPrefix(raw, "@"); ok {
		if name == "" {
			return Address{}, fmt.Errorf("identity: empty name in %q", raw)
		}
		return Named(name), nil
	}
	return Parse(raw)
}

// MustParse is like Parse but panics on error. Use in tests and static
// initialization where the input is known-valid.
func MustParse(raw string) Address {
	address, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("identity.MustParse(%q): %v", raw, err))
	}
	return address
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool { return a == Address{} }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

// String returns the "0x"-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for log output (e.g., "0x1a2b…9f0e").
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	return "0x" + full[:4] + "…" + full[len(full)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts the same
// forms as ParseRef. Empty input produces the zero address.
func (a *Address) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseRef(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
