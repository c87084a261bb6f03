// Command brc20progd runs the BRC-20 programmable module execution engine:
// one mdbx-backed state store, one EVM execution engine, and one JSON-RPC
// server an indexer drives through the engine's lifecycle (initialise,
// mine, transact/call, finaliseBlock, commitToDatabase, reorg).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/brc20-prog/internal/config"
	"github.com/erigontech/brc20-prog/internal/engine"
	"github.com/erigontech/brc20-prog/internal/rpc"
	"github.com/erigontech/brc20-prog/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "brc20progd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg.Verbosity)
	if err != nil {
		return err
	}

	env, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer env.Close()

	precompileCfg, err := cfg.PrecompileConfig()
	if err != nil {
		return fmt.Errorf("configuring precompiles: %w", err)
	}

	eng := engine.New(env, cfg.EngineConfig(), precompileCfg)

	jwtSecret, err := loadJWTSecret(cfg.RPCAuthJWTSecretPath)
	if err != nil {
		return fmt.Errorf("loading rpc auth secret: %w", err)
	}

	server := rpc.New(eng, logger, jwtSecret)
	httpServer := &http.Server{Addr: cfg.RPCListenAddr, Handler: server}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("rpc: listening", "addr", cfg.RPCListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	case <-sig:
		logger.Info("shutting down")
		if err := httpServer.Close(); err != nil {
			logger.Warn("closing rpc server", "err", err)
		}
		if err := eng.CommitToDB(); err != nil {
			logger.Warn("final commit before shutdown", "err", err)
		}
	}
	return nil
}

func setupLogger(verbosity string) (log.Logger, error) {
	lvl, err := log.LvlFromString(verbosity)
	if err != nil {
		return nil, fmt.Errorf("invalid verbosity %q: %w", verbosity, err)
	}
	handler := log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat()))
	log.Root().SetHandler(handler)
	return log.Root(), nil
}

func loadJWTSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return secret, nil
}
