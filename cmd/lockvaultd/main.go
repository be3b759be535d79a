// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockvault/lib/calltoken"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/config"
	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/ledger"
	"github.com/bureau-foundation/lockvault/lib/process"
	"github.com/bureau-foundation/lockvault/lib/service"
	"github.com/bureau-foundation/lockvault/lib/sqlitepool"
	"github.com/bureau-foundation/lockvault/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("lockvaultd", pflag.ContinueOnError)
	var (
		configPath  string
		showVersion bool
	)
	flags.StringVar(&configPath, "config", "", "path to lockvault.yaml (default: $"+config.EnvVar+")")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return process.Usage(err)
	}

	if showVersion {
		fmt.Println("lockvaultd", version.Full())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.LogLevel()
	logger := service.NewLogger(os.Stderr, cfg.Log.Format, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, cleanup, err := openDaemon(ctx, cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("lockvault daemon running",
		"vault", daemon.vault.Address(),
		"socket", cfg.Paths.Socket,
		"version", version.Info(),
	)
	return daemon.serve(ctx, cfg.Paths.Socket)
}

// daemon is the assembled process state: the vault, its custody store,
// and the socket-facing service.
type daemon struct {
	vault         *ledger.Vault
	service       *vaultService
	verifier      *calltoken.Verifier
	cleanupPeriod time.Duration
	clock         clock.Clock
	logger        *slog.Logger
}

// openDaemon acquires the state directory, opens the database, and
// builds the vault. The returned cleanup closes everything in reverse
// order.
func openDaemon(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (_ *daemon, _ func(), err error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			closeAll()
		}
	}()

	if err := cfg.EnsurePaths(); err != nil {
		return nil, nil, err
	}

	stateLock, err := acquireStateLock(cfg.LockPath())
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { stateLock.Close() })

	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       cfg.DatabasePath(),
		Logger:     logger,
		Migrations: ledger.Migrations,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening vault database: %w", err)
	}
	closers = append(closers, func() {
		if err := pool.Close(); err != nil {
			logger.Error("closing vault database", "error", err)
		}
	})

	vaultAddress, err := cfg.VaultAddress()
	if err != nil {
		return nil, nil, err
	}
	owner, err := ownerFromConfig(cfg.Owner)
	if err != nil {
		return nil, nil, err
	}
	hooks, err := newSocketHooks(cfg)
	if err != nil {
		return nil, nil, err
	}
	denySelectors, err := cfg.DenySelectors()
	if err != nil {
		return nil, nil, err
	}
	hookTimeout, err := cfg.HookTimeout()
	if err != nil {
		return nil, nil, err
	}
	cleanupPeriod, err := cfg.ReplayCleanupInterval()
	if err != nil {
		return nil, nil, err
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, nil, err
	}

	custodyStore := custody.NewStore(pool)
	applied, err := custodyStore.ApplyGenesis(ctx, genesis)
	if err != nil {
		return nil, nil, fmt.Errorf("applying genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied",
			"tokens", len(genesis.Tokens),
			"balances", len(genesis.Balances),
		)
	}

	vault, err := ledger.Open(ctx, ledger.Config{
		Pool:        pool,
		Address:     vaultAddress,
		Owner:       owner,
		Custody:     custody.NewDispatcher(logger),
		Hooks:       hooks,
		DenyList:    ledger.NewSelectorDenyList(denySelectors...),
		HookTimeout: hookTimeout,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return &daemon{
		vault: vault,
		service: &vaultService{
			vault:     vault,
			custody:   custodyStore,
			clock:     clk,
			startedAt: clk.Now(),
			logger:    logger,
		},
		verifier:      calltoken.NewVerifier(clk),
		cleanupPeriod: cleanupPeriod,
		clock:         clk,
		logger:        logger,
	}, closeAll, nil
}

// serve runs the socket server and the replay-cache sweeper until ctx
// is cancelled.
func (d *daemon) serve(ctx context.Context, socketPath string) error {
	server := service.NewSocketServer(socketPath, d.logger, d.verifier)
	server.ErrorKind = ledger.Kind
	d.service.registerActions(server)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		d.sweepReplayCache(ctx)
	}()

	err := server.Serve(ctx)
	<-sweepDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	d.logger.Info("lockvault daemon stopped")
	return nil
}

func (d *daemon) sweepReplayCache(ctx context.Context) {
	ticker := d.clock.NewTicker(d.cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := d.verifier.Cache.Cleanup(now); removed > 0 {
				d.logger.Debug("expired caller tokens dropped", "count", removed)
			}
		}
	}
}
