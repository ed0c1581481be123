// main is the entry point of the course marketplace API.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, YAML file, environment overrides)
//  2. Initialise the logger
//  3. Open the store: SQLite file or PostgreSQL (migrated with goose)
//  4. Build the token service, role resolver, payment processor and
//     enrollment service
//  5. Pick the rate limiter: Redis when configured, in-memory otherwise
//  6. Register all HTTP routes
//  7. Start the HTTP server in a separate goroutine
//  8. Block until SIGINT/SIGTERM, then shut down gracefully
//
// RUNNING THE SERVER:
//
//	go run ./cmd/coursemart-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/coursemart-api
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/config"
	"github.com/aanand-mishra/coursemart-api/internal/enrollment"
	"github.com/aanand-mishra/coursemart-api/internal/http/middleware"
	"github.com/aanand-mishra/coursemart-api/internal/http/router"
	"github.com/aanand-mishra/coursemart-api/internal/payment"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/storage/postgres"
	"github.com/aanand-mishra/coursemart-api/internal/storage/sqlite"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Set as the default too, so package-level slog calls in the handlers
	// share the same format and level.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting coursemart-api",
		slog.String("env", cfg.Env),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("failed to initialise storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// ── 4. Services ───────────────────────────────────────────────────────
	tokens, err := auth.NewTokenService(cfg.Auth.TokenSecret)
	if err != nil {
		log.Error("failed to initialise token service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	processor, err := payment.NewStripe(cfg.Payments.SecretKey)
	if err != nil {
		log.Error("failed to initialise payment processor", slog.String("error", err.Error()))
		os.Exit(1)
	}
	enroll := enrollment.New(store, processor, cfg.Payments.Currency, log)

	// ── 5. Rate Limiter ───────────────────────────────────────────────────
	limiter := newRateLimiter(cfg, log)
	defer limiter.Close()

	// ── 6. Register HTTP Routes ───────────────────────────────────────────
	handler := router.New(router.Deps{
		Store:          store,
		Tokens:         tokens,
		Roles:          auth.NewRoleResolver(store),
		Enrollment:     enroll,
		Logger:         log,
		Limiter:        limiter,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
		AllowedOrigins: cfg.HTTPServer.AllowedOrigins,
	})

	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: handler,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 7. Start Server in a Goroutine ────────────────────────────────────
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 8. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully", slog.String("error", err.Error()))
		return
	}

	log.Info("server stopped gracefully")
}

// openStore returns the backend selected by storage.driver. The PostgreSQL
// schema is migrated before the pool is opened.
func openStore(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := postgres.Migrate(ctx, cfg.Storage.PostgresDSN, log); err != nil {
			return nil, err
		}
		store, err := postgres.Connect(cfg.Storage.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		log.Info("storage initialised", slog.String("driver", "postgres"))
		return store, nil

	default:
		if dir := filepath.Dir(cfg.StoragePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		store, err := sqlite.New(cfg)
		if err != nil {
			return nil, err
		}
		log.Info("storage initialised",
			slog.String("driver", "sqlite"),
			slog.String("path", cfg.StoragePath))
		return store, nil
	}
}

// newRateLimiter prefers Redis so that limits hold across instances, and
// falls back to process memory when Redis is not configured or not
// reachable.
func newRateLimiter(cfg *config.Config, log *slog.Logger) middleware.RateLimiter {
	if cfg.RateLimit.RedisAddr == "" {
		return middleware.NewMemoryRateLimiter()
	}
	limiter, err := middleware.NewRedisRateLimiter(
		cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB, log)
	if err != nil {
		log.Warn("redis rate limiter unavailable, using in-memory limiter",
			slog.String("error", err.Error()))
		return middleware.NewMemoryRateLimiter()
	}
	log.Info("rate limiter initialised", slog.String("backend", "redis"))
	return limiter
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Staging: JSON output at DEBUG level.
// Production (prod): JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}
