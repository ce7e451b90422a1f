// Package main is the entrypoint for the jobleaser API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/jobleaser/internal/api"
	"github.com/kiranshivaraju/jobleaser/internal/api/handler"
	mw "github.com/kiranshivaraju/jobleaser/internal/api/middleware"
	"github.com/kiranshivaraju/jobleaser/internal/api/response"
	"github.com/kiranshivaraju/jobleaser/internal/assignment"
	"github.com/kiranshivaraju/jobleaser/internal/auth"
	"github.com/kiranshivaraju/jobleaser/internal/cache"
	"github.com/kiranshivaraju/jobleaser/internal/config"
	"github.com/kiranshivaraju/jobleaser/internal/ingest"
	"github.com/kiranshivaraju/jobleaser/internal/logger"
	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	migrationsDir   = "migrations"
	envFile         = ".env"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected")

	// 5. Create store and services
	pgStore := store.NewPostgresStore(pool)
	sessions := auth.NewSessions(redisCache, cfg.Auth.SessionTTL)
	svc := assignment.NewService(pgStore, pgStore, sessions, redisCache, log)
	importer := ingest.NewImporter(pgStore, sequence.NewAllocator(pgStore, log), log)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(sessions, cfg.Auth.AdminToken),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin),

		HealthHandler: healthHandler(pgStore, redisCache),

		LoginHandler:        handler.NewLoginHandler(svc),
		ConfirmLoginHandler: handler.NewConfirmLoginHandler(svc),
		NextJobHandler:      handler.NewNextJobHandler(svc),
		ReportResultHandler: handler.NewReportResultHandler(svc),
		JobStatusHandler:    handler.NewJobStatusHandler(svc),

		CreateAgentHandler: handler.NewCreateAgentHandler(pgStore),
		ListAgentsHandler:  handler.NewListAgentsHandler(pgStore),
		ImportJobsHandler:  handler.NewImportJobsHandler(importer),
		RequeueJobHandler:  handler.NewRequeueJobHandler(svc),
		JobStatsHandler:    handler.NewJobStatsHandler(pgStore),
		CreatePoolHandler:  handler.NewCreatePoolHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
