package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/slotwatch/slotwatch/internal/availability"

// DefaultStationTimeout bounds a single station visit.
const DefaultStationTimeout = 60 * time.Second

// Recorder receives scan measurements.
type Recorder interface {
	RecordStation(ctx context.Context, endpoint StationEndpoint, duration time.Duration, err error)
	RecordScan(ctx context.Context, result *ScanResult)
}

type noopRecorder struct{}

func (noopRecorder) RecordStation(context.Context, StationEndpoint, time.Duration, error) {}
func (noopRecorder) RecordScan(context.Context, *ScanResult)                              {}

// ScannerConfig holds configuration for the Scanner.
type ScannerConfig struct {
	// Sessions opens the browsing session used for a scan.
	Sessions SessionOpener

	// Logger for scan operations.
	Logger zerolog.Logger

	// Recorder receives per-station and per-scan measurements (optional).
	Recorder Recorder

	// MaxDurationMinutes caps the requested duration (default: DefaultMaxDurationMinutes).
	MaxDurationMinutes int

	// StationTimeout bounds each station visit (default: DefaultStationTimeout).
	StationTimeout time.Duration
}

// Scanner checks a list of stations for one reservation request.
type Scanner struct {
	sessions       SessionOpener
	fetcher        *StationFetcher
	logger         zerolog.Logger
	recorder       Recorder
	tracer         trace.Tracer
	maxDuration    int
	stationTimeout time.Duration
}

// NewScanner creates a new Scanner.
func NewScanner(cfg ScannerConfig) *Scanner {
	maxDuration := cfg.MaxDurationMinutes
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDurationMinutes
	}

	stationTimeout := cfg.StationTimeout
	if stationTimeout <= 0 {
		stationTimeout = DefaultStationTimeout
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Scanner{
		sessions:       cfg.Sessions,
		fetcher:        NewStationFetcher(cfg.Logger),
		logger:         cfg.Logger,
		recorder:       recorder,
		tracer:         otel.Tracer(tracerName),
		maxDuration:    maxDuration,
		stationTimeout: stationTimeout,
	}
}

// MaxDurationMinutes returns the longest duration the scanner accepts.
func (s *Scanner) MaxDurationMinutes() int {
	return s.maxDuration
}

// Scan validates req, then visits stations in order over one session.
// A station that fails is recorded in ScanResult.Failures and the scan moves
// on. Only an invalid request, an empty station list, a session that cannot
// be opened, or cancellation of ctx fail the whole call.
func (s *Scanner) Scan(ctx context.Context, stations []StationEndpoint, req ReservationRequest) (*ScanResult, error) {
	if err := req.Validate(s.maxDuration); err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, ErrNoStations
	}

	result := &ScanResult{
		ID:        uuid.NewString(),
		Request:   req,
		Reports:   make([]StationReport, 0, len(stations)),
		Failures:  []StationFailure{},
		StartedAt: time.Now(),
	}

	ctx, span := s.tracer.Start(ctx, "availability.Scan",
		trace.WithAttributes(
			attribute.String("scan.id", result.ID),
			attribute.Int("scan.stations", len(stations)),
			attribute.String("scan.start", req.Start.Format(time.RFC3339)),
			attribute.Int("scan.duration_minutes", req.DurationMinutes),
		),
	)
	defer span.End()

	logger := s.logger.With().Str("scan_id", result.ID).Logger()
	logger.Info().
		Int("stations", len(stations)).
		Time("start", req.Start).
		Int("duration_minutes", req.DurationMinutes).
		Msg("starting availability scan")

	session, err := s.sessions.Open(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session unavailable")
		logger.Error().Err(err).Msg("failed to open provider session")
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close provider session")
		}
	}()

	for _, endpoint := range stations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report, err := s.visit(ctx, session, endpoint, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn().
				Err(err).
				Str("station", string(endpoint)).
				Msg("station check failed, continuing")
			result.Failures = append(result.Failures, StationFailure{
				Endpoint: endpoint,
				Error:    err.Error(),
			})
			continue
		}

		result.Reports = append(result.Reports, *report)
	}

	result.FinishedAt = time.Now()
	s.recorder.RecordScan(ctx, result)

	span.SetAttributes(
		attribute.Int("scan.reports", len(result.Reports)),
		attribute.Int("scan.failures", len(result.Failures)),
	)

	logger.Info().
		Dur("duration", result.Duration()).
		Int("reports", len(result.Reports)).
		Int("failures", len(result.Failures)).
		Int("available_vehicles", result.AvailableCount()).
		Msg("availability scan completed")

	return result, nil
}

func (s *Scanner) visit(ctx context.Context, page PageSource, endpoint StationEndpoint, req ReservationRequest) (*StationReport, error) {
	stationCtx, cancel := context.WithTimeout(ctx, s.stationTimeout)
	defer cancel()

	stationCtx, span := s.tracer.Start(stationCtx, "availability.FetchStation",
		trace.WithAttributes(attribute.String("station.endpoint", string(endpoint))),
	)
	defer span.End()

	start := time.Now()
	report, err := s.fetcher.Fetch(stationCtx, page, endpoint, req)
	s.recorder.RecordStation(ctx, endpoint, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "station fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("station.vehicles", len(report.Vehicles)))
	return report, nil
}
