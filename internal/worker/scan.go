package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/history"
	"github.com/slotwatch/slotwatch/internal/scanrequest"
)

// ScanRunner runs a scan. *availability.Scanner implements it.
type ScanRunner interface {
	Scan(ctx context.Context, stations []availability.StationEndpoint, req availability.ReservationRequest) (*availability.ScanResult, error)
}

// Window is one reservation window of a job.
type Window struct {
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ScanJob runs queued scans and stores their results.
type ScanJob struct {
	config   JobConfig
	scanner  ScanRunner
	sessions availability.SessionOpener
	history  history.Repository
	requests scanrequest.Builder
	logger   zerolog.Logger

	metrics *JobMetrics
}

// JobMetrics tracks scan job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalScans      int64
	SuccessfulScans int64
	FailedScans     int64
	RejectedScans   int64
	StationFailures int64

	// Timings
	LastScanAt       time.Time
	LastScanDuration time.Duration
	TotalDuration    time.Duration
}

// ScanJobConfig holds configuration for creating a ScanJob.
type ScanJobConfig struct {
	Config   JobConfig
	Scanner  ScanRunner
	Sessions availability.SessionOpener
	History  history.Repository
	Requests scanrequest.Builder
	Logger   zerolog.Logger
}

// NewScanJob creates a new scan job processor.
func NewScanJob(cfg ScanJobConfig) *ScanJob {
	return &ScanJob{
		config:   cfg.Config.withDefaults(),
		scanner:  cfg.Scanner,
		sessions: cfg.Sessions,
		history:  cfg.History,
		requests: cfg.Requests,
		logger:   cfg.Logger,
		metrics:  &JobMetrics{},
	}
}

// BatchResult contains the result of a batch of windows.
type BatchResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Windows    int
	Successful int
	Failed     int
	Scans      []*availability.ScanResult
	Errors     []WindowError
}

// WindowError represents a window that could not be scanned.
type WindowError struct {
	Window Window
	Error  string
}

// Run scans every window against stations (the configured list when empty).
// All windows are validated first; if any is invalid nothing is scanned and
// a permanent error is returned.
func (j *ScanJob) Run(ctx context.Context, windows []Window, stations []string) (*BatchResult, error) {
	if len(windows) == 0 {
		return nil, Permanent(errors.New("job has no reservation window"))
	}

	type planned struct {
		window   Window
		req      availability.ReservationRequest
		stations []availability.StationEndpoint
	}

	plans := make([]planned, 0, len(windows))
	for i, w := range windows {
		req, endpoints, err := j.requests.Build(scanrequest.Input{
			Start:           w.Start,
			DurationMinutes: w.DurationMinutes,
			Stations:        stations,
		})
		if err != nil {
			j.recordRejected()
			return nil, Permanent(fmt.Errorf("window %d: %w", i, err))
		}
		plans = append(plans, planned{window: w, req: req, stations: endpoints})
	}

	startTime := time.Now()
	result := &BatchResult{StartTime: startTime, Windows: len(plans)}

	j.logger.Info().
		Int("windows", len(plans)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting scan job")

	plansChan := make(chan int, len(plans))
	resultsChan := make(chan windowResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range plansChan {
				if ctx.Err() != nil {
					resultsChan <- windowResult{index: idx, err: ctx.Err()}
					continue
				}
				p := plans[idx]
				scan, err := j.scanWindow(ctx, p.stations, p.req)
				resultsChan <- windowResult{index: idx, scan: scan, err: err}
			}
		}()
	}

	for i := range plans {
		plansChan <- i
	}
	close(plansChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	ordered := make([]windowResult, len(plans))
	for wr := range resultsChan {
		ordered[wr.index] = wr
	}

	var lastErr error
	for i, wr := range ordered {
		if wr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WindowError{Window: plans[i].window, Error: wr.err.Error()})
			lastErr = wr.err
			continue
		}
		result.Successful++
		result.Scans = append(result.Scans, wr.scan)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("scan job completed")

	// Consider it successful if at least half the windows were scanned.
	if result.Failed > result.Successful {
		return result, fmt.Errorf("too many failed windows: %d/%d: %w", result.Failed, result.Windows, lastErr)
	}
	return result, nil
}

type windowResult struct {
	index int
	scan  *availability.ScanResult
	err   error
}

func (j *ScanJob) scanWindow(ctx context.Context, stations []availability.StationEndpoint, req availability.ReservationRequest) (*availability.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, j.config.ScanTimeout)
	defer cancel()

	scan, err := j.scanner.Scan(ctx, stations, req)
	if err != nil {
		j.recordFailed()
		if errors.Is(err, availability.ErrInvalidRequest) || errors.Is(err, availability.ErrNoStations) {
			return nil, Permanent(err)
		}
		return nil, err
	}

	if err := j.history.Save(ctx, scan); err != nil {
		// The scan itself succeeded; storing it is retried with the message.
		j.recordFailed()
		return nil, fmt.Errorf("store scan %s: %w", scan.ID, err)
	}

	j.recordScan(scan)
	return scan, nil
}

// HealthCheck opens and closes a provider session to verify the login works.
func (j *ScanJob) HealthCheck(ctx context.Context) error {
	j.logger.Debug().Msg("running provider health check")

	session, err := j.sessions.Open(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if err := session.Close(); err != nil {
		j.logger.Warn().Err(err).Msg("failed to close health check session")
	}

	j.logger.Debug().Msg("health check passed")
	return nil
}

func (j *ScanJob) recordScan(scan *availability.ScanResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalScans++
	j.metrics.SuccessfulScans++
	j.metrics.StationFailures += int64(len(scan.Failures))
	j.metrics.LastScanAt = scan.FinishedAt
	j.metrics.LastScanDuration = scan.Duration()
	j.metrics.TotalDuration += scan.Duration()
}

func (j *ScanJob) recordFailed() {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalScans++
	j.metrics.FailedScans++
}

func (j *ScanJob) recordRejected() {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.RejectedScans++
}

// GetMetrics returns a copy of the current metrics.
func (j *ScanJob) GetMetrics() JobMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return JobMetrics{
		TotalScans:       j.metrics.TotalScans,
		SuccessfulScans:  j.metrics.SuccessfulScans,
		FailedScans:      j.metrics.FailedScans,
		RejectedScans:    j.metrics.RejectedScans,
		StationFailures:  j.metrics.StationFailures,
		LastScanAt:       j.metrics.LastScanAt,
		LastScanDuration: j.metrics.LastScanDuration,
		TotalDuration:    j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *ScanJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_scans":        m.TotalScans,
		"successful_scans":   m.SuccessfulScans,
		"failed_scans":       m.FailedScans,
		"rejected_scans":     m.RejectedScans,
		"station_failures":   m.StationFailures,
		"last_scan_at":       m.LastScanAt,
		"last_scan_duration": m.LastScanDuration.String(),
		"total_duration":     m.TotalDuration.String(),
	}
}
