package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/telemetry"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestScanMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := telemetry.NewScanMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordStation(ctx, "U882", 120*time.Millisecond, nil)
	metrics.RecordStation(ctx, "V558", 2*time.Second, errors.New("timeout"))

	started := time.Date(2021, 1, 2, 14, 0, 0, 0, time.UTC)
	metrics.RecordScan(ctx, &availability.ScanResult{
		Reports: []availability.StationReport{{
			Endpoint: "U882",
			Vehicles: []availability.VehicleAvailability{
				{CarName: "Fit", IsAvailable: true},
				{CarName: "Note", IsAvailable: false},
			},
		}},
		Failures:   []availability.StationFailure{{Endpoint: "V558", Error: "timeout"}},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	})

	got := collect(t, reader)

	total, ok := got["slotwatch.station.fetch.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var visits int64
	for _, dp := range total.DataPoints {
		visits += dp.Value
	}
	assert.Equal(t, int64(2), visits)
	assert.Len(t, total.DataPoints, 2, "success and failure are separate series")

	scan, ok := got["slotwatch.scan.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, scan.DataPoints, 1)
	assert.InDelta(t, 3.0, scan.DataPoints[0].Sum, 0.001)

	available, ok := got["slotwatch.vehicles.available"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, available.DataPoints, 1)
	assert.Equal(t, int64(1), available.DataPoints[0].Sum)
}

func TestScanMetrics_GlobalMeter(t *testing.T) {
	metrics, err := telemetry.NewScanMetrics(nil)
	require.NoError(t, err)

	// The global provider is a noop unless Init ran; recording must not panic.
	metrics.RecordStation(context.Background(), "U882", time.Second, nil)
	metrics.RecordScan(context.Background(), &availability.ScanResult{})
}
