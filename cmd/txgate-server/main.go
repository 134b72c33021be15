// Command txgate-server serves HTTP routes paid for with transaction hashes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ginfw "github.com/gin-gonic/gin"
	"go.uber.org/zap"

	txgate "github.com/x402-foundation/txgate"
	"github.com/x402-foundation/txgate/config"
	"github.com/x402-foundation/txgate/mechanisms/evm"
)

func main() {
	configPath := flag.String("config", os.Getenv("TXGATE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "txgate-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required (TXGATE_CHAIN_RPC_URL or INFURA_RPC_URL)")
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := config.StartTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	reader, err := evm.Dial(ctx, cfg.Chain.RPCURL,
		evm.WithCallTimeout(cfg.Chain.CallTimeout),
		evm.WithTracerProvider(tracing.Provider),
	)
	if err != nil {
		return err
	}
	defer reader.Close()

	chainID, err := reader.ChainID(ctx)
	if err != nil {
		return err
	}
	if chainID != cfg.Chain.NetworkID {
		return fmt.Errorf("rpc endpoint serves chain %d, configured network is %d", chainID, cfg.Chain.NetworkID)
	}

	store, err := config.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gates, err := config.BuildGates(cfg, store, reader, logger, txgate.WithTracerProvider(tracing.Provider))
	if err != nil {
		return err
	}
	auditAccepted(gates, logger)

	if !cfg.Log.Development {
		ginfw.SetMode(ginfw.ReleaseMode)
	}
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(cfg, gates, store, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.Uint64("network_id", cfg.Chain.NetworkID),
			zap.String("store", cfg.Store.Backend),
			zap.String("verifier", cfg.Verifier.Policy),
			zap.Int("routes", len(gates)),
			zap.Bool("tracing", cfg.Telemetry.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
