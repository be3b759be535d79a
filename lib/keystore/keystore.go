// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/lockvault/lib/identity"
)

// DefaultWorkFactor is the scrypt log2(N) used for new key files.
const DefaultWorkFactor = 18

// PublicSuffix is appended to a key path to name its public key file.
const PublicSuffix = ".pub"

var (
	// ErrWrongPassphrase is returned when a key file does not open
	// with the given passphrase.
	ErrWrongPassphrase = errors.New("keystore: wrong passphrase")

	// ErrEmptyPassphrase is returned when sealing with an empty
	// passphrase.
	ErrEmptyPassphrase = errors.New("keystore: empty passphrase")
)

// Generate creates a new ed25519 keypair.
func Generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: generating ed25519 key: %w", err)
	}
	return public, private, nil
}

// Seal encrypts privateKey's seed under passphrase and returns the
// armored ciphertext.
func Seal(privateKey ed25519.PrivateKey, passphrase string, workFactor int) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keystore: private key has %d bytes, want %d", len(privateKey), ed25519.PrivateKeySize)
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	var sealed bytes.Buffer
	armored := armor.NewWriter(&sealed)
	writer, err := age.Encrypt(armored, recipient)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(privateKey.Seed()); err != nil {
		return nil, fmt.Errorf("keystore: writing seed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("keystore: finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("keystore: finalizing armor: %w", err)
	}
	return sealed.Bytes(), nil
}

// Unseal reverses Seal.
func Unseal(sealed []byte, passphrase string) (ed25519.PrivateKey, error) {
	scryptIdentity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), scryptIdentity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("keystore: decrypting: %w", err)
	}
	seed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keystore: sealed seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Save writes the sealed key to path (mode 0600) and its public key to
// path+PublicSuffix (mode 0644). It refuses to overwrite an existing
// key file.
func Save(path string, privateKey ed25519.PrivateKey, passphrase string, workFactor int) error {
	sealed, err := Seal(privateKey, passphrase, workFactor)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("keystore: creating %s: %w", path, err)
	}
	if _, err := file.Write(sealed); err != nil {
		file.Close()
		return fmt.Errorf("keystore: writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("keystore: closing %s: %w", path, err)
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)
	if err := os.WriteFile(path+PublicSuffix, []byte(hex.EncodeToString(publicKey)+"\n"), 0644); err != nil {
		return fmt.Errorf("keystore: writing public key: %w", err)
	}
	return nil
}

// Load reads and unseals the key at path.
func Load(path, passphrase string) (ed25519.PrivateKey, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", path, err)
	}
	privateKey, err := Unseal(sealed, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return privateKey, nil
}

// LoadPublic reads the public key saved next to the key at path.
func LoadPublic(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path + PublicSuffix)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading public key: %w", err)
	}
	return ParsePublicKey(strings.TrimSpace(string(data)))
}

// ParsePublicKey parses a hex-encoded ed25519 public key.
func ParsePublicKey(raw string) (ed25519.PublicKey, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("keystore: public key: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keystore: public key has %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

// AddressOf returns the identity of the key saved at path without
// unsealing it.
func AddressOf(path string) (identity.Address, error) {
	publicKey, err := LoadPublic(path)
	if err != nil {
		return identity.Address{}, err
	}
	return identity.FromPublicKey(publicKey), nil
}
