// Package main is the entry point for the brigata costing engine API server.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"brigata/internal/domain/ledger"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/domain/period"
	"brigata/internal/domain/valuation"
	"brigata/internal/infrastructure/config"
	v1 "brigata/internal/infrastructure/http/v1"
	"brigata/internal/infrastructure/storage/postgres"
	"brigata/internal/infrastructure/storage/postgres/ledger_repo"
	"brigata/internal/infrastructure/storage/postgres/period_repo"
	"brigata/internal/infrastructure/storage/postgres/policy_repo"
	"brigata/internal/infrastructure/storage/postgres/valuation_repo"
	"brigata/pkg/logger"
)

func main() {
	// Local development convenience; env vars win over the file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: !cfg.App.IsProduction(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting costing engine", "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DB.ConnectionString())
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns
	poolCfg.MaxConnLifetime = cfg.DB.MaxConnLifetime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Repositories ---
	ledgerRepo := ledger_repo.NewLedgerRepo(txm)
	periodRepo := period_repo.NewPeriodRepo(txm)
	valuationRepo := valuation_repo.NewValuationRepo(txm)
	policyRepo := policy_repo.NewPolicyRepo(txm)

	// --- Services ---
	policyService := orgpolicy.NewService(policyRepo)
	builder := valuation.NewBuilder(ledgerRepo, valuationRepo)

	// Reconciliation needs the recipe and sales collaborators from the
	// wider platform; deployments without them run with the gate disabled.
	periodService := period.NewService(periodRepo, txm, builder, valuationRepo, policyService, nil)
	ledgerService := ledger.NewService(ledgerRepo, txm, periodService, policyService)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:       pool.Pool,
		Logger:     log,
		Ledger:     ledgerService,
		Periods:    periodService,
		Valuations: valuationRepo,
		Policies:   policyService,
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
