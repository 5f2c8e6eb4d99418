// Package main provides the entrypoint for the slotwatch API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/api"
	"github.com/slotwatch/slotwatch/internal/api/handler"
	"github.com/slotwatch/slotwatch/internal/api/middleware"
	"github.com/slotwatch/slotwatch/internal/app"
	"github.com/slotwatch/slotwatch/internal/auth"
	"github.com/slotwatch/slotwatch/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "slotwatch-api"

	configPath := flag.String("config", "", "configuration file")
	flag.Parse()

	cfg, err := config.Load(config.Resolve(*configPath))
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{
		ServiceName: serviceName,
		Version:     Version,
		LogOutput:   os.Stdout,
		Telemetry:   true,
	})
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()
	log := a.Logger

	log.Info().
		Str("build_time", BuildTime).
		Int("stations", len(cfg.Stations)).
		Msg("starting slotwatch API")

	// Initialize metrics
	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		a.Close()
		os.Exit(1) //nolint:gocritic // a.Close already ran
	}

	var jwtService *auth.JWTService
	if cfg.API.JWTSigningKey != "" {
		jwtService, err = auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.API.JWTSigningKey,
			Issuer:     cfg.API.JWTIssuer,
			Audience:   cfg.API.JWTAudience,
			TokenTTL:   cfg.API.TokenTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize JWT service")
		}
	} else {
		log.Warn().Msg("api.jwt_signing_key not set - scan endpoints are unauthenticated")
	}

	var deps []handler.DependencyCheck
	if a.UsesDatabase() {
		deps = append(deps, handler.DependencyCheck{Name: "database", Check: a.PingDatabase})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		JWTService:   jwtService,
		RequireTLS:   cfg.API.RequireTLS,
		Scanner:      a.Scanner,
		History:      a.History,
		Requests:     a.Requests,
		Registry:     a.Registry,
		Dependencies: deps,
	})

	// A scan walks every station in the request, so writes get a long timeout.
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
