// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockvault/cmd/lockvault/cli"
	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/process"
	"github.com/bureau-foundation/lockvault/lib/vaultapi"
	"github.com/bureau-foundation/lockvault/lib/version"
)

// call runs one signed request against the daemon.
func (a *app) call(ctx context.Context, params *connectionParams, action string, fields map[string]any, result any) error {
	client, err := a.signingClient(params)
	if err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx, params)
	defer cancel()
	return client.Call(ctx, action, fields, result)
}

type statusParams struct {
	connectionParams
	cli.JSONOutput
}

func (a *app) statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show the vault's address, owner, and nonce",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("status", args); err != nil {
				return err
			}
			status, err := a.fetchStatus(ctx, &params.connectionParams)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, status); done {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "vault\t%s\n", status.Vault)
			fmt.Fprintf(tw, "owner\t%s\n", status.Owner)
			fmt.Fprintf(tw, "nonce\t%d\n", status.Nonce)
			fmt.Fprintf(tw, "owner nonce\t%d\n", status.OwnerNonce)
			fmt.Fprintf(tw, "locks\t%d\n", status.Locks)
			fmt.Fprintf(tw, "uptime\t%s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
			fmt.Fprintf(tw, "version\t%s\n", status.Build.Version)
			return tw.Flush()
		},
	}
}

func (a *app) nonceCommand() *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "nonce",
		Summary: "Print the vault's sequence number",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("nonce", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("nonce", args); err != nil {
				return err
			}
			var response vaultapi.NonceResponse
			if err := a.call(ctx, &params, vaultapi.ActionNonce, nil, &response); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, response.Nonce)
			return nil
		},
	}
}

type lockParams struct {
	connectionParams
	Token     string `flag:"token" desc:"token address or @name"`
	Amount    uint64 `flag:"amount" desc:"amount the owner signed for"`
	Signature string `flag:"signature" desc:"owner's permission signature, hex"`
}

func (a *app) lockCommand() *cli.Command {
	return a.lockOrUnlockCommand(vaultapi.ActionLock, "Lock vault balance for yourself with an owner permission")
}

func (a *app) unlockCommand() *cli.Command {
	return a.lockOrUnlockCommand(vaultapi.ActionUnlock, "Release part of your lock with an owner permission")
}

// lockOrUnlockCommand builds lock and unlock, which differ only in the
// action. The caller's key is the delegate.
func (a *app) lockOrUnlockCommand(action, summary string) *cli.Command {
	var params lockParams
	return &cli.Command{
		Name:    action,
		Summary: summary,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(action, &params) },
		Examples: []cli.Example{
			{Command: "lockvault " + action + " --key alice.key --token @usd --amount 100 --signature 0x..."},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(action, args); err != nil {
				return err
			}
			token, err := parseRef("token", params.Token)
			if err != nil {
				return err
			}
			if params.Signature == "" {
				return process.Usage(errors.New("--signature is required"))
			}
			signature, err := parseHex("signature", params.Signature)
			if err != nil {
				return err
			}

			var response vaultapi.NonceResponse
			err = a.call(ctx, &params.connectionParams, action, map[string]any{
				"token":     token,
				"amount":    params.Amount,
				"signature": signature,
			}, &response)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%sed %d of %s; nonce is now %d\n", action, params.Amount, token.Short(), response.Nonce)
			return nil
		},
	}
}

type rageQuitParams struct {
	connectionParams
	cli.JSONOutput
	Delegate  string `flag:"delegate" desc:"delegate address or @name"`
	Token     string `flag:"token" desc:"token address or @name"`
	Signature string `flag:"signature" desc:"owner's rageQuit signature, hex (when --key is not the owner)"`
}

// ownerSignature decodes an optional owner signature flag into the
// request fields.
func ownerSignature(raw string, fields map[string]any) error {
	if raw == "" {
		return nil
	}
	signature, err := parseHex("signature", raw)
	if err != nil {
		return err
	}
	fields["signature"] = signature
	return nil
}

func (a *app) rageQuitCommand() *cli.Command {
	var params rageQuitParams
	return &cli.Command{
		Name:    "rage-quit",
		Summary: "Remove a delegate's lock as the owner, without their consent",
		Description: "Remove a delegate's lock as the owner. When the owner is a threshold\n" +
			"or remote identity, pass the owner's rageQuit signature from\n" +
			"'lockvault sign --op rageQuit'; any key may then submit it.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("rage-quit", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("rage-quit", args); err != nil {
				return err
			}
			delegate, err := parseRef("delegate", params.Delegate)
			if err != nil {
				return err
			}
			token, err := parseRef("token", params.Token)
			if err != nil {
				return err
			}

			fields := map[string]any{
				"delegate": delegate,
				"token":    token,
			}
			if err := ownerSignature(params.Signature, fields); err != nil {
				return err
			}

			var result vaultapi.RageQuitResponse
			err = a.call(ctx, &params.connectionParams, vaultapi.ActionRageQuit, fields, &result)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "released %d of %s from %s\n", result.Released, result.Token.Short(), result.Delegate.Short())
			switch {
			case !result.HasHook:
				fmt.Fprintln(a.stdout, "delegate has no hook")
			case result.Notified:
				fmt.Fprintln(a.stdout, "delegate hook acknowledged")
			case result.Reason != "":
				fmt.Fprintf(a.stdout, "delegate hook declined: %s\n", result.Reason)
			default:
				fmt.Fprintln(a.stdout, "delegate hook failed")
			}
			return nil
		},
	}
}

type callParams struct {
	connectionParams
	Target     string `flag:"target" desc:"contract address or @name"`
	Value      uint64 `flag:"value" desc:"native value to send with the call"`
	Payload    string `flag:"payload" desc:"raw call payload, hex (selector then CBOR arguments)"`
	TransferTo string `flag:"transfer-to" desc:"encode a transfer(to, amount) payload instead of --payload"`
	Amount     uint64 `flag:"amount" desc:"amount for --transfer-to"`
	Signature  string `flag:"signature" desc:"owner's externalCall signature, hex (when --key is not the owner)"`
}

func (a *app) callCommand() *cli.Command {
	var params callParams
	return &cli.Command{
		Name:    "call",
		Summary: "Make an external call from the vault as the owner",
		Description: "Make an external call from the vault's custody as the owner. The call\n" +
			"is refused when its selector is on the deny list and is rolled back\n" +
			"when it leaves any lock uncovered. A threshold or remote owner signs\n" +
			"the call with 'lockvault sign --op externalCall' and any key submits\n" +
			"it with --signature.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("call", &params) },
		Examples: []cli.Example{
			{
				Description: "Pay 40 of @usd to @bob out of unlocked custody",
				Command:     "lockvault call --key owner.key --target @usd --transfer-to @bob --amount 40",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("call", args); err != nil {
				return err
			}
			target, err := parseRef("target", params.Target)
			if err != nil {
				return err
			}
			payload, err := params.payload()
			if err != nil {
				return err
			}

			fields := map[string]any{
				"target":  target,
				"value":   params.Value,
				"payload": payload,
			}
			if err := ownerSignature(params.Signature, fields); err != nil {
				return err
			}

			var response vaultapi.ExternalCallResponse
			err = a.call(ctx, &params.connectionParams, vaultapi.ActionExternalCall, fields, &response)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "0x"+hex.EncodeToString(response.Result))
			return nil
		},
	}
}

func (p *callParams) payload() ([]byte, error) {
	return callPayload(p.Payload, p.TransferTo, p.Amount)
}

// callPayload builds an external call payload from either a raw hex
// payload or a transfer recipient and amount.
func callPayload(raw, transferTo string, amount uint64) ([]byte, error) {
	switch {
	case raw != "" && transferTo != "":
		return nil, process.Usage(errors.New("--payload and --transfer-to are mutually exclusive"))
	case raw != "":
		return parseHex("payload", raw)
	case transferTo != "":
		to, err := parseRef("transfer-to", transferTo)
		if err != nil {
			return nil, err
		}
		return custody.EncodeCall(custody.SelectorTransfer, custody.TransferArgs{To: to, Amount: amount})
	default:
		return nil, process.Usage(errors.New("one of --payload or --transfer-to is required"))
	}
}

type transferParams struct {
	connectionParams
	Token  string `flag:"token" desc:"token address or @name"`
	To     string `flag:"to" desc:"recipient address or @name (default: the vault)"`
	Amount uint64 `flag:"amount" desc:"amount to transfer"`
}

func (a *app) transferCommand() *cli.Command {
	var params transferParams
	return &cli.Command{
		Name:    "transfer",
		Summary: "Move your own custody balance, by default into the vault",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("transfer", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("transfer", args); err != nil {
				return err
			}
			token, err := parseRef("token", params.Token)
			if err != nil {
				return err
			}
			to, err := a.holderOrVault(ctx, &params.connectionParams, "to", params.To)
			if err != nil {
				return err
			}
			err = a.call(ctx, &params.connectionParams, vaultapi.ActionTransfer, map[string]any{
				"token":  token,
				"to":     to,
				"amount": params.Amount,
			}, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "transferred %d of %s to %s\n", params.Amount, token.Short(), to.Short())
			return nil
		},
	}
}

// holderOrVault parses raw, or asks the daemon for the vault's address
// when raw is empty.
func (a *app) holderOrVault(ctx context.Context, params *connectionParams, flag, raw string) (identity.Address, error) {
	if raw != "" {
		return parseRef(flag, raw)
	}
	status, err := a.fetchStatus(ctx, params)
	if err != nil {
		return identity.Address{}, fmt.Errorf("fetching vault address: %w", err)
	}
	return status.Vault, nil
}

type locksParams struct {
	connectionParams
	cli.JSONOutput
}

func (a *app) locksCommand() *cli.Command {
	var params locksParams
	return &cli.Command{
		Name:    "locks",
		Summary: "List every lock in creation order",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("locks", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("locks", args); err != nil {
				return err
			}
			var response vaultapi.LocksResponse
			if err := a.call(ctx, &params.connectionParams, vaultapi.ActionLocks, nil, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, response.Locks); done {
				return err
			}
			if len(response.Locks) == 0 {
				fmt.Fprintln(a.stdout, "no locks")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tDELEGATE\tTOKEN\tBALANCE\tUPDATED")
			for index, lock := range response.Locks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
					index, lock.Delegate, lock.Token.Short(), lock.Balance, lock.Updated().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

type balanceParams struct {
	connectionParams
	cli.JSONOutput
	Token  string `flag:"token" desc:"token address or @name"`
	Holder string `flag:"holder" desc:"holder address or @name (default: the vault)"`
}

type balanceResult struct {
	Token  identity.Address `json:"token"`
	Holder identity.Address `json:"holder"`
	Held   uint64           `json:"held"`

	// Locked is the vault's locked total, set only when Holder is the
	// vault.
	Locked *uint64 `json:"locked,omitempty"`
}

func (a *app) balanceCommand() *cli.Command {
	var params balanceParams
	return &cli.Command{
		Name:    "balance",
		Summary: "Show a custody balance and, for the vault, how much is locked",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("balance", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("balance", args); err != nil {
				return err
			}
			token, err := parseRef("token", params.Token)
			if err != nil {
				return err
			}
			client, err := a.signingClient(&params.connectionParams)
			if err != nil {
				return err
			}
			ctx, cancel := a.withTimeout(ctx, &params.connectionParams)
			defer cancel()

			result := balanceResult{Token: token}
			if params.Holder != "" {
				if result.Holder, err = parseRef("holder", params.Holder); err != nil {
					return err
				}
			} else {
				var status vaultapi.StatusResponse
				if err := client.Call(ctx, vaultapi.ActionStatus, nil, &status); err != nil {
					return err
				}
				result.Holder = status.Vault
				var locked vaultapi.AmountResponse
				err := client.Call(ctx, vaultapi.ActionBalanceLocked, map[string]any{"token": token}, &locked)
				if err != nil {
					return err
				}
				result.Locked = &locked.Amount
			}

			var held vaultapi.AmountResponse
			err = client.Call(ctx, vaultapi.ActionBalanceOf, map[string]any{
				"token":  token,
				"holder": result.Holder,
			}, &held)
			if err != nil {
				return err
			}
			result.Held = held.Amount

			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "%s holds %d of %s\n", result.Holder.Short(), result.Held, token.Short())
			if result.Locked != nil {
				fmt.Fprintf(a.stdout, "locked %d, free %d\n", *result.Locked, result.Held-min(result.Held, *result.Locked))
			}
			return nil
		},
	}
}

func (a *app) checkCommand() *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "check",
		Summary: "Verify that custody covers every lock (exit 1 if not)",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("check", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("check", args); err != nil {
				return err
			}
			var response vaultapi.CheckResponse
			if err := a.call(ctx, &params, vaultapi.ActionCheckBalances, nil, &response); err != nil {
				return err
			}
			if !response.OK {
				return &process.ExitError{Code: 1, Err: errors.New("custody does not cover every lock")}
			}
			fmt.Fprintln(a.stdout, "every lock is covered")
			return nil
		},
	}
}

func (a *app) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(_ context.Context, args []string) error {
			if err := noArgs("version", args); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "lockvault", version.Full())
			return nil
		},
	}
}
