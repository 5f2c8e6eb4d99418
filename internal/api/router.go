// Package api provides the HTTP API for slotwatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/api/handler"
	"github.com/slotwatch/slotwatch/internal/api/middleware"
	"github.com/slotwatch/slotwatch/internal/auth"
	"github.com/slotwatch/slotwatch/internal/history"
	"github.com/slotwatch/slotwatch/internal/provider/resilience"
	"github.com/slotwatch/slotwatch/internal/scanrequest"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// JWTService guards the scan endpoints. Nil leaves them open.
	JWTService *auth.JWTService
	RequireTLS bool

	Scanner      handler.ScanRunner
	History      history.Repository
	Requests     scanrequest.Builder
	Registry     *resilience.Registry
	Dependencies []handler.DependencyCheck

	// ScanRateLimit overrides middleware.ScanRateLimit when non-zero.
	ScanRateLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "slotwatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))          // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))        // Panic recovery
	r.Use(chimiddleware.RealIP)                   // Real IP extraction
	r.Use(middleware.SecurityHeaders)             // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))  // TLS enforcement behind a load balancer

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Dependencies...)
	scanHandler := handler.NewScanHandler(handler.ScanHandlerConfig{
		Scanner:  cfg.Scanner,
		History:  cfg.History,
		Requests: cfg.Requests,
		Logger:   cfg.Logger,
	})

	scanLimit := cfg.ScanRateLimit
	if scanLimit.RequestLimit == 0 {
		scanLimit = middleware.ScanRateLimit
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/scans", func(r chi.Router) {
			if cfg.JWTService != nil {
				r.Use(middleware.Auth(cfg.JWTService))
			}
			r.Use(middleware.RateLimitBySubject(middleware.StandardRateLimit))

			r.With(middleware.RequireScope(auth.ScopeScansRead)).Get("/", scanHandler.ListScans)
			r.With(middleware.RequireScope(auth.ScopeScansRead)).Get("/{scanId}", scanHandler.GetScan)

			// Each scan logs in to the provider and walks every station.
			r.With(
				middleware.RequireScope(auth.ScopeScansWrite),
				middleware.RequireJSON,
				middleware.RateLimitBySubject(scanLimit),
			).Post("/", scanHandler.CreateScan)
		})
	})

	return r
}
