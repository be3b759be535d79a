// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockvault/cmd/lockvault/cli"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/keystore"
	"github.com/bureau-foundation/lockvault/lib/permission"
	"github.com/bureau-foundation/lockvault/lib/process"
	"github.com/bureau-foundation/lockvault/lib/vaultapi"
)

type keygenParams struct {
	cli.JSONOutput
	Out        string `flag:"out,o" desc:"path for the sealed key; the public key is written beside it with a .pub suffix"`
	WorkFactor int    `flag:"work-factor" default:"18" desc:"scrypt work factor (log2 of N)"`
}

type keygenResult struct {
	Address   identity.Address `json:"address"`
	PublicKey string           `json:"public_key"`
	Path      string           `json:"path"`
}

func (a *app) keygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a passphrase-sealed ed25519 key",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("keygen", &params) },
		Examples: []cli.Example{
			{Description: "Create the owner key", Command: "lockvault keygen --out owner.key"},
		},
		Run: func(_ context.Context, args []string) error {
			if err := noArgs("keygen", args); err != nil {
				return err
			}
			if params.Out == "" {
				return process.Usage(fmt.Errorf("--out is required"))
			}
			passphrase, err := a.passphrase("New passphrase: ", true)
			if err != nil {
				return err
			}
			publicKey, privateKey, err := keystore.Generate()
			if err != nil {
				return err
			}
			if err := keystore.Save(params.Out, privateKey, passphrase, params.WorkFactor); err != nil {
				return err
			}

			result := keygenResult{
				Address:   identity.FromPublicKey(publicKey),
				PublicKey: hex.EncodeToString(publicKey),
				Path:      params.Out,
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "address     %s\n", result.Address)
			fmt.Fprintf(a.stdout, "public key  %s\n", result.PublicKey)
			return nil
		},
	}
}

type addressParams struct {
	Key string `flag:"key" desc:"key file (reads its .pub companion; no passphrase needed)"`
}

func (a *app) addressCommand() *cli.Command {
	var params addressParams
	return &cli.Command{
		Name:    "address",
		Summary: "Print the address of a key file",
		Usage:   "lockvault address --key FILE",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("address", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := noArgs("address", args); err != nil {
				return err
			}
			if params.Key == "" {
				return process.Usage(fmt.Errorf("--key is required"))
			}
			address, err := keystore.AddressOf(params.Key)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, address)
			return nil
		},
	}
}

type signParams struct {
	connectionParams
	Operation  string `flag:"op" default:"lock" desc:"operation to authorize: lock, unlock, rageQuit, or externalCall"`
	Vault      string `flag:"vault" desc:"vault address or @name (default: asked of the daemon)"`
	Delegate   string `flag:"delegate" desc:"delegate address or @name"`
	Token      string `flag:"token" desc:"token address or @name"`
	Amount     uint64 `flag:"amount" desc:"amount to lock or unlock, or the --transfer-to amount of an externalCall"`
	Target     string `flag:"target" desc:"externalCall target address or @name"`
	Value      uint64 `flag:"value" desc:"native value the externalCall sends"`
	Payload    string `flag:"payload" desc:"raw externalCall payload, hex"`
	TransferTo string `flag:"transfer-to" desc:"encode a transfer(to, amount) externalCall payload instead of --payload"`
	Nonce      string `flag:"nonce" desc:"nonce to sign for (default: the daemon's sequence number, or its owner nonce for rageQuit and externalCall)"`
}

// message builds the unsigned message for the chosen operation. Vault
// and nonce are filled in by the caller.
func (p *signParams) message() (permission.Message, error) {
	operation := permission.Operation(p.Operation)
	switch operation {
	case permission.OperationLock, permission.OperationUnlock, permission.OperationRageQuit:
		delegate, err := parseRef("delegate", p.Delegate)
		if err != nil {
			return permission.Message{}, err
		}
		token, err := parseRef("token", p.Token)
		if err != nil {
			return permission.Message{}, err
		}
		message := permission.Message{Operation: operation, Delegate: delegate, Token: token}
		if !operation.OwnerOnly() {
			message.Amount = p.Amount
		}
		return message, nil

	case permission.OperationExternalCall:
		target, err := parseRef("target", p.Target)
		if err != nil {
			return permission.Message{}, err
		}
		payload, err := callPayload(p.Payload, p.TransferTo, p.Amount)
		if err != nil {
			return permission.Message{}, err
		}
		return permission.Message{Operation: operation, Delegate: target, Amount: p.Value, Payload: payload}, nil
	}
	return permission.Message{}, process.Usage(fmt.Errorf("--op must be lock, unlock, rageQuit, or externalCall, got %q", p.Operation))
}

// signCommand produces the owner's permission signature. The vault
// address and nonce may be fetched from the daemon; everything else
// stays local.
func (a *app) signCommand() *cli.Command {
	var params signParams
	return &cli.Command{
		Name:    "sign",
		Summary: "Sign a permission as the owner",
		Description: "Sign a permission with the owner's key and print the signature as hex.\n" +
			"A delegate submits a lock or unlock permission with 'lockvault lock' or\n" +
			"'lockvault unlock'. A rageQuit or externalCall permission goes to\n" +
			"'lockvault rage-quit' or 'lockvault call' with --signature. Members of\n" +
			"a threshold owner each sign and combine with 'lockvault bundle'. A\n" +
			"permission is valid for exactly one nonce.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("sign", &params) },
		Examples: []cli.Example{
			{
				Description: "Authorize @alice to lock 100 of @usd at the current nonce",
				Command:     "lockvault sign --key owner.key --delegate @alice --token @usd --amount 100",
			},
			{
				Description: "Authorize releasing @alice's @usd lock",
				Command:     "lockvault sign --key member.key --op rageQuit --delegate @alice --token @usd",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("sign", args); err != nil {
				return err
			}
			if !permission.Operation(params.Operation).Valid() {
				return process.Usage(fmt.Errorf("--op must be lock, unlock, rageQuit, or externalCall, got %q", params.Operation))
			}
			if params.Key == "" {
				return process.Usage(fmt.Errorf("--key is required"))
			}
			message, err := params.message()
			if err != nil {
				return err
			}
			if params.Vault != "" {
				if message.Vault, err = parseRef("vault", params.Vault); err != nil {
					return err
				}
			}
			if params.Nonce != "" {
				if message.Nonce, err = strconv.ParseUint(params.Nonce, 10, 64); err != nil {
					return process.Usage(fmt.Errorf("--nonce: %w", err))
				}
			}
			if params.Vault == "" || params.Nonce == "" {
				status, err := a.fetchStatus(ctx, &params.connectionParams)
				if err != nil {
					return fmt.Errorf("fetching vault status: %w", err)
				}
				if params.Vault == "" {
					message.Vault = status.Vault
				}
				if params.Nonce == "" {
					message.Nonce = status.Nonce
					if message.Operation.OwnerOnly() {
						message.Nonce = status.OwnerNonce
					}
				}
			}

			privateKey, err := a.loadKey(params.Key)
			if err != nil {
				return err
			}
			signature, err := permission.Sign(privateKey, message)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "0x"+hex.EncodeToString(signature))
			return nil
		},
	}
}

// bundleCommand combines threshold members' signatures into the
// owner signature a threshold owner's vault accepts.
func (a *app) bundleCommand() *cli.Command {
	return &cli.Command{
		Name:    "bundle",
		Summary: "Combine threshold members' signatures into one owner signature",
		Usage:   "lockvault bundle INDEX=SIGNATURE...",
		Description: "INDEX is the member's position in the owner's threshold key list and\n" +
			"SIGNATURE the hex output of 'lockvault sign' with that member's key.",
		Examples: []cli.Example{
			{Command: "lockvault bundle 0=0x5f... 2=0x9a..."},
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) == 0 {
				return process.Usage(fmt.Errorf("bundle: at least one INDEX=SIGNATURE is required"))
			}
			bundle := make([]permission.ThresholdSignature, 0, len(args))
			for _, arg := range args {
				rawIndex, rawSignature, found := strings.Cut(arg, "=")
				if !found {
					return process.Usage(fmt.Errorf("bundle: %q is not INDEX=SIGNATURE", arg))
				}
				index, err := strconv.Atoi(rawIndex)
				if err != nil || index < 0 {
					return process.Usage(fmt.Errorf("bundle: bad index in %q", arg))
				}
				signature, err := hex.DecodeString(strings.TrimPrefix(rawSignature, "0x"))
				if err != nil {
					return process.Usage(fmt.Errorf("bundle: signature %d: %w", index, err))
				}
				bundle = append(bundle, permission.ThresholdSignature{Index: index, Signature: signature})
			}
			encoded, err := permission.EncodeThresholdSignature(bundle)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "0x"+hex.EncodeToString(encoded))
			return nil
		},
	}
}

func (a *app) fetchStatus(ctx context.Context, params *connectionParams) (vaultapi.StatusResponse, error) {
	var status vaultapi.StatusResponse
	client, err := a.anonymousClient(params)
	if err != nil {
		return status, err
	}
	ctx, cancel := a.withTimeout(ctx, params)
	defer cancel()
	err = client.Call(ctx, vaultapi.ActionStatus, nil, &status)
	return status, err
}
