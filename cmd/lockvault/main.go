// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/lockvault/cmd/lockvault/cli"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr, os.Getenv, clock.Real()).root().Execute(ctx, os.Args[1:])
	stop()
	if err != nil && !errors.Is(err, cli.ErrHelp) {
		process.Fatal(err)
	}
}
