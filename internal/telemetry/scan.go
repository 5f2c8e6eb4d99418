package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/slotwatch/slotwatch/internal/availability"
)

const scanMeterName = "github.com/slotwatch/slotwatch/internal/telemetry"

// ScanMetrics records scan and station visit metrics. It implements
// availability.Recorder.
type ScanMetrics struct {
	scanDuration      metric.Float64Histogram
	stationDuration   metric.Float64Histogram
	stationTotal      metric.Int64Counter
	vehiclesAvailable metric.Int64Histogram
}

var _ availability.Recorder = (*ScanMetrics)(nil)

// NewScanMetrics creates scan instruments on meter, or on the global meter
// provider when meter is nil.
func NewScanMetrics(meter metric.Meter) (*ScanMetrics, error) {
	if meter == nil {
		meter = otel.Meter(scanMeterName)
	}

	scanDuration, err := meter.Float64Histogram(
		"slotwatch.scan.duration",
		metric.WithDescription("Duration of a full station scan in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stationDuration, err := meter.Float64Histogram(
		"slotwatch.station.fetch.duration",
		metric.WithDescription("Duration of one station visit in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stationTotal, err := meter.Int64Counter(
		"slotwatch.station.fetch.total",
		metric.WithDescription("Number of station visits"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		return nil, err
	}

	vehiclesAvailable, err := meter.Int64Histogram(
		"slotwatch.vehicles.available",
		metric.WithDescription("Vehicles free for the whole window per scan"),
		metric.WithUnit("{vehicle}"),
	)
	if err != nil {
		return nil, err
	}

	return &ScanMetrics{
		scanDuration:      scanDuration,
		stationDuration:   stationDuration,
		stationTotal:      stationTotal,
		vehiclesAvailable: vehiclesAvailable,
	}, nil
}

// RecordStation records one station visit.
func (m *ScanMetrics) RecordStation(ctx context.Context, endpoint availability.StationEndpoint, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("station.endpoint", string(endpoint)),
		attribute.Bool("error", err != nil),
	)
	// The station context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	m.stationDuration.Record(ctx, duration.Seconds(), attrs)
	m.stationTotal.Add(ctx, 1, attrs)
}

// RecordScan records a finished scan.
func (m *ScanMetrics) RecordScan(ctx context.Context, result *availability.ScanResult) {
	attrs := metric.WithAttributes(
		attribute.Int("scan.stations", len(result.Reports)+len(result.Failures)),
		attribute.Bool("scan.partial", result.HasFailures()),
	)
	ctx = context.WithoutCancel(ctx)
	m.scanDuration.Record(ctx, result.Duration().Seconds(), attrs)
	m.vehiclesAvailable.Record(ctx, int64(result.AvailableCount()), attrs)
}
