package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"salaryrules/internal/domain/audit"
	"salaryrules/internal/domain/auth"
	"salaryrules/internal/domain/payroll"
	"salaryrules/internal/platform/config"
	cryptoutil "salaryrules/internal/platform/crypto"
	"salaryrules/internal/platform/db"
	"salaryrules/internal/platform/logging"
	"salaryrules/internal/platform/metrics"
	"salaryrules/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Config config.Config
	DB     *db.Pool
	Router http.Handler
}

// Run starts the API and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	app, err := New(cfg, pool, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payroll server listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// New wires stores and services over pool into an App.
func New(cfg config.Config, pool *db.Pool, logger *slog.Logger) (*App, error) {
	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	rounding, err := payroll.RoundingByName(cfg.RoundingMode, cfg.CurrencyPrecision)
	if err != nil {
		return nil, err
	}
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	auditLog := audit.New(pool)
	deps := Deps{
		Payroll: payroll.NewService(payroll.NewStore(pool), crypto, payroll.Settings{
			Rounding:     rounding,
			BatchWorkers: cfg.BatchWorkers,
			Metrics:      collector,
		}),
		Tokens:      auth.NewService(auth.NewStore(pool), cfg.JWTSecret, cfg.TokenTTL),
		Auditor:     auditLog,
		AuditLog:    auditLog,
		Idempotency: middleware.NewIdempotencyStore(pool),
		Metrics:     collector,
		DB:          pool,
	}
	return &App{Config: cfg, DB: pool, Router: NewRouter(cfg, logger, deps)}, nil
}
