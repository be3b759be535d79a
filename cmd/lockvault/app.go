// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bureau-foundation/lockvault/cmd/lockvault/cli"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/config"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/keystore"
	"github.com/bureau-foundation/lockvault/lib/process"
	"github.com/bureau-foundation/lockvault/lib/service"
)

// PassphraseEnv supplies the key passphrase non-interactively.
const PassphraseEnv = "LOCKVAULT_PASSPHRASE"

// app holds the process surroundings commands depend on.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	clock  clock.Clock

	// readPassphrase prompts for a passphrase when PassphraseEnv is
	// unset.
	readPassphrase func(prompt string) (string, error)
}

func newApp(stdout, stderr io.Writer, getenv func(string) string, clk clock.Clock) *app {
	a := &app{stdout: stdout, stderr: stderr, getenv: getenv, clock: clk}
	a.readPassphrase = a.readTerminalPassphrase
	return a
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:       "lockvault",
		Summary:    "Operate a lock vault and its keys",
		HelpOutput: a.stderr,
		Subcommands: []*cli.Command{
			a.keygenCommand(),
			a.addressCommand(),
			a.signCommand(),
			a.bundleCommand(),
			a.statusCommand(),
			a.nonceCommand(),
			a.lockCommand(),
			a.unlockCommand(),
			a.rageQuitCommand(),
			a.callCommand(),
			a.transferCommand(),
			a.locksCommand(),
			a.balanceCommand(),
			a.checkCommand(),
			a.versionCommand(),
		},
	}
}

// connectionParams locate the daemon and the caller's key.
type connectionParams struct {
	Socket  string        `flag:"socket" desc:"daemon socket (default: paths.socket from $LOCKVAULT_CONFIG)"`
	Key     string        `flag:"key" desc:"caller's sealed key file"`
	Timeout time.Duration `flag:"timeout" default:"10s" desc:"request timeout"`
}

func (a *app) socketPath(params *connectionParams) (string, error) {
	if params.Socket != "" {
		return params.Socket, nil
	}
	if a.getenv(config.EnvVar) == "" {
		return "", process.Usage(fmt.Errorf("--socket is required when $%s is not set", config.EnvVar))
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.Paths.Socket, nil
}

// anonymousClient calls the daemon without a caller token.
func (a *app) anonymousClient(params *connectionParams) (*service.ServiceClient, error) {
	socket, err := a.socketPath(params)
	if err != nil {
		return nil, err
	}
	return service.NewServiceClientFromToken(socket, nil), nil
}

// signingClient unseals --key and returns a client that signs every
// call with it.
func (a *app) signingClient(params *connectionParams) (*service.ServiceClient, error) {
	socket, err := a.socketPath(params)
	if err != nil {
		return nil, err
	}
	if params.Key == "" {
		return nil, process.Usage(errors.New("--key is required"))
	}
	privateKey, err := a.loadKey(params.Key)
	if err != nil {
		return nil, err
	}
	return service.NewSigningClient(socket, privateKey, a.clock), nil
}

func (a *app) withTimeout(ctx context.Context, params *connectionParams) (context.Context, context.CancelFunc) {
	if params.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, params.Timeout)
}

func (a *app) loadKey(path string) (ed25519.PrivateKey, error) {
	passphrase, err := a.passphrase(fmt.Sprintf("Passphrase for %s: ", path), false)
	if err != nil {
		return nil, err
	}
	return keystore.Load(path, passphrase)
}

// passphrase returns PassphraseEnv or prompts for one. With confirm
// set, the prompt is repeated and both entries must match.
func (a *app) passphrase(prompt string, confirm bool) (string, error) {
	if value := a.getenv(PassphraseEnv); value != "" {
		return value, nil
	}
	first, err := a.readPassphrase(prompt)
	if err != nil {
		return "", err
	}
	if confirm {
		second, err := a.readPassphrase("Confirm passphrase: ")
		if err != nil {
			return "", err
		}
		if first != second {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func (a *app) readTerminalPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set $%s", PassphraseEnv)
	}
	fmt.Fprint(a.stderr, prompt)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(passphrase), nil
}

// parseRef parses an address flag, naming the flag in the error.
func parseRef(flag, raw string) (identity.Address, error) {
	if raw == "" {
		return identity.Address{}, process.Usage(fmt.Errorf("--%s is required", flag))
	}
	address, err := identity.ParseRef(raw)
	if err != nil {
		return identity.Address{}, process.Usage(fmt.Errorf("--%s: %w", flag, err))
	}
	return address, nil
}

// parseHex decodes a hex flag with an optional 0x prefix.
func parseHex(flag, raw string) ([]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, process.Usage(fmt.Errorf("--%s: %w", flag, err))
	}
	return decoded, nil
}

func noArgs(command string, args []string) error {
	if len(args) > 0 {
		return process.Usage(fmt.Errorf("%s: unexpected argument %q", command, args[0]))
	}
	return nil
}
