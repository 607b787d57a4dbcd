package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"salaryrules/internal/platform/config"
	"salaryrules/internal/platform/metrics"
	"salaryrules/internal/transport/http/api"
	audithandler "salaryrules/internal/transport/http/handlers/audit"
	authhandler "salaryrules/internal/transport/http/handlers/auth"
	payrollhandler "salaryrules/internal/transport/http/handlers/payroll"
	"salaryrules/internal/transport/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the router dispatches to.
type Deps struct {
	Payroll     payrollhandler.Service
	Tokens      authhandler.TokenIssuer
	Auditor     payrollhandler.Auditor
	AuditLog    audithandler.Lister
	Idempotency payrollhandler.Idempotency
	Metrics     *metrics.Collector
	DB          Pinger
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Total-Count", "Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}).Handler)
	router.Use(middleware.SecureHeaders(cfg.Environment == config.EnvProduction))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB == nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if deps.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, r, deps.Metrics.Snapshot())
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(deps.Tokens)
		r.With(middleware.RateLimit(cfg.TokenRateLimit, time.Minute,
			middleware.WithKeyFunc(middleware.BodyFieldOrIPKey("client_id")))).
			Post("/auth/token", authHandler.HandleToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireClient)
			r.Use(middleware.RateLimit(cfg.RateLimit, time.Minute))

			payrollHandler := payrollhandler.NewHandler(deps.Payroll, deps.Idempotency, deps.Auditor)
			payrollHandler.RegisterRoutes(r)

			if deps.AuditLog != nil {
				auditHandler := audithandler.NewHandler(deps.AuditLog)
				auditHandler.RegisterRoutes(r)
			}
		})
	})

	return router
}
