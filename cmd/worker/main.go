// Package main provides the entrypoint for the slotwatch scan worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/app"
	"github.com/slotwatch/slotwatch/internal/config"
	"github.com/slotwatch/slotwatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "slotwatch-worker"

	configPath := flag.String("config", "", "configuration file")
	flag.Parse()

	cfg, err := config.Load(config.Resolve(*configPath))
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		Str("subscription", cfg.PubSub.Subscription).
		Msg("starting slotwatch worker")

	if cfg.PubSub.ProjectID == "" || cfg.PubSub.Subscription == "" {
		log.Error().Msg("pubsub.project_id and pubsub.subscription are required")
		a.Close()
		os.Exit(1) //nolint:gocritic // a.Close already ran
	}

	jobConfig := worker.JobConfig{
		Concurrency:            cfg.PubSub.Concurrency,
		ScanTimeout:            cfg.PubSub.ScanTimeout,
		MaxOutstandingMessages: cfg.PubSub.MaxOutstandingMessages,
		MaxExtension:           cfg.PubSub.MaxExtension,
	}

	job := worker.NewScanJob(worker.ScanJobConfig{
		Config:   jobConfig,
		Scanner:  a.Scanner,
		Sessions: a.Provider,
		History:  a.History,
		Requests: a.Requests,
		Logger:   log,
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSub.ProjectID,
		SubscriptionName: cfg.PubSub.Subscription,
		Job:              jobConfig,
		Dispatcher:       worker.NewDispatcher(job, log),
		Logger:           log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create pubsub handler")
		a.Close()
		os.Exit(1)
	}
	defer func() {
		if err := handler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}()

	// Worker also exposes a health endpoint for Cloud Run.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if err := a.PingDatabase(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  http.StatusText(status),
			"version": Version,
			"metrics": job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.API.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("pubsub receive stopped")
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
