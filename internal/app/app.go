// Package app wires configuration into the scanner and its supporting
// services. The CLI, the API server and the worker all start from New.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/config"
	"github.com/slotwatch/slotwatch/internal/database"
	"github.com/slotwatch/slotwatch/internal/history"
	"github.com/slotwatch/slotwatch/internal/logging"
	"github.com/slotwatch/slotwatch/internal/provider/resilience"
	"github.com/slotwatch/slotwatch/internal/scanrequest"
	"github.com/slotwatch/slotwatch/internal/telemetry"
	"github.com/slotwatch/slotwatch/internal/timescar"
)

// Options identify the running binary.
type Options struct {
	ServiceName string
	Version     string

	// LogOutput receives log lines (required).
	LogOutput io.Writer

	// Telemetry starts the OTLP exporters when the configuration enables them.
	Telemetry bool
}

// App holds the services built from a Config.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *resilience.Registry
	Provider *timescar.Client
	Scanner  *availability.Scanner
	History  history.Repository
	Requests scanrequest.Builder

	telemetry *telemetry.Provider
	pool      *pgxpool.Pool
}

// New builds the scanner stack. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := logging.New(cfg.Log, opts.LogOutput, opts.ServiceName, opts.Version)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: resilience.NewRegistry(),
	}

	if opts.Telemetry {
		tcfg := cfg.Telemetry
		tcfg.ServiceName = opts.ServiceName
		tcfg.ServiceVersion = opts.Version
		tp, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			return nil, fmt.Errorf("initialize telemetry: %w", err)
		}
		a.telemetry = tp
		if tcfg.Enabled {
			logger.Info().Str("otlp_endpoint", tcfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
		}
	}

	recorder, err := telemetry.NewScanMetrics(nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create scan metrics: %w", err)
	}

	rc := resilience.DefaultClientConfig(timescar.ProviderName)
	rc.Timeout = cfg.Provider.Timeout
	rc.MaxRetries = cfg.Provider.MaxRetries
	rc.UserAgent = cfg.Provider.UserAgent
	rc.Registry = a.Registry

	provider, err := timescar.NewClient(timescar.ClientConfig{
		BaseURL:     cfg.Provider.BaseURL,
		LoginURL:    cfg.Provider.LoginURL,
		Credentials: cfg.Credentials.Timescar(),
		HTTPClient:  resilience.NewClient(rc),
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create provider client: %w", err)
	}
	a.Provider = provider

	a.Scanner = availability.NewScanner(availability.ScannerConfig{
		Sessions:           provider,
		Logger:             logger,
		Recorder:           recorder,
		MaxDurationMinutes: cfg.Scan.MaxDurationMinutes,
		StationTimeout:     cfg.Scan.StationTimeout,
	})

	a.Requests = scanrequest.Builder{
		Location:           cfg.Location(),
		Stations:           cfg.StationEndpoints(),
		MaxDurationMinutes: cfg.Scan.MaxDurationMinutes,
	}

	if err := a.openHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) openHistory(ctx context.Context) error {
	switch a.Config.History.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, a.Config.Database)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		a.pool = pool

		repo := history.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.History = repo
		a.Logger.Info().
			Str("host", a.Config.Database.Host).
			Str("database", a.Config.Database.Database).
			Msg("history database connected")
	default:
		a.History = history.NewInMemoryRepository(a.Config.History.Capacity)
	}
	return nil
}

// PingDatabase checks the history database. It is a no-op for the memory store.
func (a *App) PingDatabase(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

// UsesDatabase reports whether history is kept in PostgreSQL.
func (a *App) UsesDatabase() bool {
	return a.pool != nil
}

// Close releases the database pool and flushes telemetry.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}
}
