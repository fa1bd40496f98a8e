package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meritlend/audit"
	"meritlend/config"
	"meritlend/core/events"
	"meritlend/crypto"
	"meritlend/native/credit"
	"meritlend/native/escrow"
	"meritlend/native/lending"
	nativeparams "meritlend/native/params"
	"meritlend/observability"
	"meritlend/observability/logging"
	"meritlend/rpc"
	"meritlend/state"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MERITLEND_ENV"))
	logger := logging.Setup("meritd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}
	roles, err := cfg.DecodeRoles()
	if err != nil {
		logger.Error("invalid role addresses", slog.Any("error", err))
		os.Exit(1)
	}

	manager := state.NewManager()
	if err := seedGenesis(manager, cfg.Genesis); err != nil {
		logger.Error("failed to seed genesis accounts", slog.Any("error", err))
		os.Exit(1)
	}

	paramStore := nativeparams.NewStore(manager)
	if err := paramStore.SetPauses(cfg.Pauses); err != nil {
		logger.Error("failed to persist pause configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := paramStore.SetCredit(cfg.Credit); err != nil {
		logger.Error("failed to persist credit policy", slog.Any("error", err))
		os.Exit(1)
	}
	if err := paramStore.SetLending(cfg.Lending); err != nil {
		logger.Error("failed to persist lending limits", slog.Any("error", err))
		os.Exit(1)
	}

	// The engines take their effective parameters from the store, so a
	// governance write there supersedes the file configuration.
	pauses, err := paramStore.Pauses()
	if err != nil {
		logger.Error("failed to load pause configuration", slog.Any("error", err))
		os.Exit(1)
	}
	creditPolicy, err := paramStore.Credit()
	if err != nil {
		logger.Error("failed to load credit policy", slog.Any("error", err))
		os.Exit(1)
	}
	lendingLimits, err := paramStore.Lending()
	if err != nil {
		logger.Error("failed to load lending limits", slog.Any("error", err))
		os.Exit(1)
	}

	recorder, err := audit.Open(cfg.AuditDatabasePath, logger)
	if err != nil {
		logger.Error("failed to open audit database", slog.Any("error", err))
		os.Exit(1)
	}
	var emitter events.Emitter = observability.NewMeteredEmitter(recorder)

	creditEngine := credit.NewEngine(roles.Admin, roles.ScoringAuthority, roles.PoolCustody)
	creditEngine.SetState(manager)
	creditEngine.SetParams(creditPolicy)
	creditEngine.SetPauses(pauses)
	creditEngine.SetEmitter(emitter)

	escrowEngine := escrow.NewEngine(roles.EscrowVault, roles.PoolCustody)
	escrowEngine.SetState(manager)
	escrowEngine.SetPauses(pauses)
	escrowEngine.SetEmitter(emitter)

	poolEngine := lending.NewEngine(roles.PoolCustody, roles.Admin)
	poolEngine.SetState(manager)
	poolEngine.SetScoringEngine(creditEngine)
	poolEngine.SetCollateralEscrow(escrowEngine)
	poolEngine.SetParams(lendingLimits)
	poolEngine.SetPauses(pauses)
	poolEngine.SetEmitter(emitter)
	poolEngine.SetEpoch(currentEpoch(cfg.EpochSeconds))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go advanceEpochs(ctx, poolEngine, manager, cfg.EpochSeconds)

	server := rpc.NewServer(creditEngine, escrowEngine, poolEngine, manager, recorder, logger)
	apiServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

// seedGenesis credits the configured balances before the node starts serving.
func seedGenesis(manager *state.Manager, accounts []config.GenesisAccount) error {
	for _, account := range accounts {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(account.Address))
		if err != nil {
			return fmt.Errorf("genesis account %q: %w", account.Address, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(account.Balance), 10)
		if !ok || balance.Sign() <= 0 {
			return fmt.Errorf("genesis account %q: invalid balance %q", account.Address, account.Balance)
		}
		if err := manager.Mint(addr, balance); err != nil {
			return fmt.Errorf("genesis account %q: %w", account.Address, err)
		}
	}
	return nil
}

func currentEpoch(epochSeconds int64) uint64 {
	if epochSeconds <= 0 {
		return 0
	}
	return uint64(time.Now().Unix() / epochSeconds)
}

// advanceEpochs ticks the pool epoch forward on the configured interval. The
// epoch gates same-window deposit-then-borrow cycles.
func advanceEpochs(ctx context.Context, pool *lending.Engine, manager *state.Manager, epochSeconds int64) {
	if epochSeconds <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(epochSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			epoch := currentEpoch(epochSeconds)
			_ = manager.WithLock(func() error {
				pool.SetEpoch(epoch)
				return nil
			})
		}
	}
}
