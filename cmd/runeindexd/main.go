// Rune indexer daemon.
//
// Usage:
//
//	runeindexd                Run the indexer against a configured Bitcoin Core node
//	runeindexd --help         Show help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/runeindex/runeindexd/config"
	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/driver"
	"github.com/runeindex/runeindexd/internal/httpapi"
	"github.com/runeindex/runeindexd/internal/reorg"
	"github.com/runeindex/runeindexd/internal/rlog"
	"github.com/runeindex/runeindexd/internal/store"
	"github.com/runeindex/runeindexd/internal/updater"
)

// exit codes, spec §6.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitRPCUnreachable   = 2
	exitStoreConsistency = 3
	exitReorgTooDeep     = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/runeindexd.log"
	}
	if err := rlog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return exitConfigError
	}
	logger := rlog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("rpc", cfg.RPC.URL).
		Str("http", cfg.HTTP.Addr).
		Msg("starting rune indexer")

	// ── 3. Open storage ───────────────────────────────────────────────────
	db, err := store.NewBadger(cfg.DBDir())
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.DBDir()).Msg("failed to open database")
		return exitStoreConsistency
	}
	defer db.Close()

	runeStore := store.New(db)
	logger.Info().Str("path", cfg.DBDir()).Msg("database opened")

	// ── 4. Wire RPC client, updater, reorg detector, driver ───────────────
	rpcClient := btcrpc.New(cfg.RPC.URL, cfg.RPC.User, cfg.RPC.Pass)
	u := updater.New(runeStore, rpcClient, cfg.ChainParams(), cfg.Schedule())
	reorgDetector := reorg.New(rpcClient, runeStore)
	d := driver.New(rpcClient, runeStore, u, reorgDetector, cfg.ActivationHeight())

	// ── 5. Start the read API ──────────────────────────────────────────────
	api := httpapi.New(cfg.HTTP.Addr, runeStore, rpcClient)
	if err := api.Start(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.HTTP.Addr).Msg("failed to start http api")
		return exitConfigError
	}
	logger.Info().Str("addr", api.Addr()).Msg("http api started")

	// ── 6. Run the driver and the API concurrently, stop both on signal ────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx, cfg.PollInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		return api.Stop(context.Background())
	})

	runErr := g.Wait()
	logger.Info().Msg("goodbye")

	switch {
	case runErr == nil || errors.Is(runErr, context.Canceled):
		return exitOK
	case errors.Is(runErr, driver.ErrRPCUnreachable):
		logger.Error().Err(runErr).Msg("bitcoin rpc unreachable")
		return exitRPCUnreachable
	case errors.Is(runErr, driver.ErrStoreConsistency):
		logger.Error().Err(runErr).Msg("store consistency error")
		return exitStoreConsistency
	case errors.Is(runErr, reorg.ErrReorgTooDeep):
		logger.Error().Err(runErr).Msg("reorg exceeded bounded depth")
		return exitReorgTooDeep
	default:
		logger.Error().Err(runErr).Msg("indexer stopped with an unexpected error")
		return exitStoreConsistency
	}
}
