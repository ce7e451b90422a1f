// Package main is the entrypoint for the jobleaser reconciliation process.
// Exactly one instance should run against a database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/jobleaser/internal/config"
	"github.com/kiranshivaraju/jobleaser/internal/logger"
	"github.com/kiranshivaraju/jobleaser/internal/reconcile"
	"github.com/kiranshivaraju/jobleaser/internal/store"
)

const envFile = ".env"

func main() {
	if err := run(); err != nil {
		slog.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connected")

	pgStore := store.NewPostgresStore(pool)
	r := reconcile.NewReconciler(pgStore, pgStore,
		cfg.Scheduler.CheckInterval, cfg.Scheduler.LoginTimeout, log)

	return r.Run(ctx)
}
