package availability_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwatch/slotwatch/internal/availability"
)

type recordedStation struct {
	endpoint availability.StationEndpoint
	err      error
}

type fakeRecorder struct {
	mu       sync.Mutex
	stations []recordedStation
	scans    []*availability.ScanResult
}

func (r *fakeRecorder) RecordStation(_ context.Context, endpoint availability.StationEndpoint, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations = append(r.stations, recordedStation{endpoint: endpoint, err: err})
}

func (r *fakeRecorder) RecordScan(_ context.Context, result *availability.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, result)
}

func threeStations() map[availability.StationEndpoint]*fakeStation {
	return map[availability.StationEndpoint]*fakeStation{
		"U882": {
			name: "Station One",
			vehicles: []fakeVehicle{
				{name: "Fit", marker: "○", slots: vacant(48)},
				{name: "Note", marker: "△", slots: occupiedAt(48, 4)},
			},
		},
		"V558": {
			name:  "Station Two",
			block: true,
		},
		"CU30": {
			name: "Station Three",
			vehicles: []fakeVehicle{
				{name: "Prius", marker: "×", slots: occupiedAt(48, 2)},
			},
		},
	}
}

func newTestScanner(opener availability.SessionOpener, recorder availability.Recorder) *availability.Scanner {
	return availability.NewScanner(availability.ScannerConfig{
		Sessions:       opener,
		Logger:         zerolog.New(io.Discard),
		Recorder:       recorder,
		StationTimeout: 50 * time.Millisecond,
	})
}

func TestScanner_IsolatesStationTimeout(t *testing.T) {
	page := newFakePage(threeStations())
	opener := &fakeOpener{page: page}
	recorder := &fakeRecorder{}
	scanner := newTestScanner(opener, recorder)

	stations := []availability.StationEndpoint{"U882", "V558", "CU30"}
	result, err := scanner.Scan(context.Background(), stations, testRequest(t))
	require.NoError(t, err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, "Station One", result.Reports[0].StationName)
	assert.Equal(t, "Station Three", result.Reports[1].StationName)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, availability.StationEndpoint("V558"), result.Failures[0].Endpoint)
	assert.Contains(t, result.Failures[0].Error, "deadline exceeded")

	assert.NotEmpty(t, result.ID)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Equal(t, 1, result.AvailableCount())

	assert.True(t, page.closed.Load(), "session should be released")
	assert.Equal(t, int32(1), opener.opens.Load())

	require.Len(t, recorder.stations, 3)
	assert.NoError(t, recorder.stations[0].err)
	assert.Error(t, recorder.stations[1].err)
	assert.NoError(t, recorder.stations[2].err)
	require.Len(t, recorder.scans, 1)
	assert.Equal(t, result.ID, recorder.scans[0].ID)
}

func TestScanner_PreservesConfiguredOrder(t *testing.T) {
	stations := threeStations()
	stations["V558"].block = false
	stations["V558"].vehicles = []fakeVehicle{{name: "Aqua", marker: "○", slots: vacant(48)}}
	page := newFakePage(stations)
	scanner := newTestScanner(&fakeOpener{page: page}, nil)

	order := []availability.StationEndpoint{"CU30", "U882", "V558"}
	result, err := scanner.Scan(context.Background(), order, testRequest(t))
	require.NoError(t, err)
	require.Len(t, result.Reports, 3)

	for i, endpoint := range order {
		assert.Equal(t, endpoint, result.Reports[i].Endpoint)
	}
	assert.Equal(t, []string{"Fit", "Note"}, []string{result.Reports[1].Vehicles[0].CarName, result.Reports[1].Vehicles[1].CarName})

	var visited []string
	for _, call := range page.calls {
		if len(call) > 5 && call[:5] == "goto:" {
			visited = append(visited, call[5:])
		}
	}
	assert.Equal(t, []string{"CU30", "U882", "V558"}, visited)
}

func TestScanner_Idempotent(t *testing.T) {
	stations := []availability.StationEndpoint{"U882", "V558", "CU30"}
	req := testRequest(t)

	first, err := newTestScanner(&fakeOpener{page: newFakePage(threeStations())}, nil).
		Scan(context.Background(), stations, req)
	require.NoError(t, err)

	second, err := newTestScanner(&fakeOpener{page: newFakePage(threeStations())}, nil).
		Scan(context.Background(), stations, req)
	require.NoError(t, err)

	assert.Equal(t, first.Reports, second.Reports)
	assert.Equal(t, first.Failures, second.Failures)
	assert.Equal(t, first.Request, second.Request)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestScanner_InvalidRequestVisitsNothing(t *testing.T) {
	opener := &fakeOpener{page: newFakePage(threeStations())}
	scanner := newTestScanner(opener, nil)

	req := availability.ReservationRequest{Start: at(14, 20), DurationMinutes: 30}
	result, err := scanner.Scan(context.Background(), []availability.StationEndpoint{"U882"}, req)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, availability.ErrInvalidRequest)
	assert.Equal(t, int32(0), opener.opens.Load())
	assert.Empty(t, opener.page.calls)
}

func TestScanner_RespectsMaxDuration(t *testing.T) {
	opener := &fakeOpener{page: newFakePage(threeStations())}
	scanner := availability.NewScanner(availability.ScannerConfig{
		Sessions:           opener,
		Logger:             zerolog.New(io.Discard),
		MaxDurationMinutes: 60,
	})
	assert.Equal(t, 60, scanner.MaxDurationMinutes())

	req := availability.ReservationRequest{Start: at(10, 0), DurationMinutes: 90}
	_, err := scanner.Scan(context.Background(), []availability.StationEndpoint{"U882"}, req)
	assert.ErrorIs(t, err, availability.ErrInvalidRequest)
	assert.Equal(t, int32(0), opener.opens.Load())
}

func TestScanner_NoStations(t *testing.T) {
	opener := &fakeOpener{page: newFakePage(nil)}
	scanner := newTestScanner(opener, nil)

	_, err := scanner.Scan(context.Background(), nil, testRequest(t))
	assert.ErrorIs(t, err, availability.ErrNoStations)
	assert.Equal(t, int32(0), opener.opens.Load())
}

func TestScanner_SessionUnavailable(t *testing.T) {
	loginErr := errors.New("login failed")
	scanner := newTestScanner(&fakeOpener{err: loginErr}, nil)

	result, err := scanner.Scan(context.Background(), []availability.StationEndpoint{"U882"}, testRequest(t))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, availability.ErrSessionUnavailable)
	assert.ErrorIs(t, err, loginErr)
}

func TestScanner_AllStationsFail(t *testing.T) {
	page := newFakePage(map[availability.StationEndpoint]*fakeStation{
		"U882": {failOn: map[string]error{"goto": errors.New("503")}},
		"V558": {name: "Empty"},
	})
	scanner := newTestScanner(&fakeOpener{page: page}, nil)

	result, err := scanner.Scan(context.Background(), []availability.StationEndpoint{"U882", "V558"}, testRequest(t))
	require.NoError(t, err)

	assert.Empty(t, result.Reports)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, availability.StationEndpoint("U882"), result.Failures[0].Endpoint)
	assert.Equal(t, availability.StationEndpoint("V558"), result.Failures[1].Endpoint)
	assert.True(t, page.closed.Load())
}

func TestScanner_DistinguishesUnavailableFromFailed(t *testing.T) {
	page := newFakePage(map[availability.StationEndpoint]*fakeStation{
		"U882": {name: "Busy", vehicles: []fakeVehicle{{name: "Fit", marker: "×", slots: occupiedAt(48, 2)}}},
		"V558": {failOn: map[string]error{"goto": errTimeout}},
	})
	scanner := newTestScanner(&fakeOpener{page: page}, nil)

	result, err := scanner.Scan(context.Background(), []availability.StationEndpoint{"U882", "V558"}, testRequest(t))
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	assert.Empty(t, result.Reports[0].AvailableVehicles())
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error, errTimeout.Error())
}

func TestScanner_ParentCancellationAborts(t *testing.T) {
	page := newFakePage(map[availability.StationEndpoint]*fakeStation{
		"U882": {name: "Blocked", block: true},
		"V558": {name: "Never", vehicles: []fakeVehicle{{name: "Fit", marker: "○", slots: vacant(48)}}},
	})
	scanner := availability.NewScanner(availability.ScannerConfig{
		Sessions:       &fakeOpener{page: page},
		Logger:         zerolog.New(io.Discard),
		StationTimeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := scanner.Scan(ctx, []availability.StationEndpoint{"U882", "V558"}, testRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.True(t, page.closed.Load(), "session should be released on cancellation")
	assert.NotContains(t, page.calls, "goto:V558")
}
