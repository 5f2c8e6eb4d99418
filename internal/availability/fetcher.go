package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PageSource is the browsing surface of the provider's member site. Calls
// that navigate block until the resulting page has loaded.
type PageSource interface {
	// GotoStation loads the reservation page of a station.
	GotoStation(ctx context.Context, endpoint StationEndpoint) error

	// ReadStationName reads the display name from the loaded station page.
	ReadStationName(ctx context.Context) (string, error)

	// SelectDate chooses the timetable date.
	SelectDate(ctx context.Context, date time.Time) error

	// SelectHour chooses the first hour the timetable shows.
	SelectHour(ctx context.Context, hour int) error

	// SubmitSearch requests the timetable for the selected date and hour.
	SubmitSearch(ctx context.Context) error

	// ListVehicleEntries returns the vehicle timetables in page order.
	ListVehicleEntries(ctx context.Context) ([]VehicleEntry, error)
}

// VehicleEntry is one vehicle's block on a loaded timetable page.
type VehicleEntry interface {
	ReadName() (string, error)
	ReadStatusMarker() (string, error)
	ReadSlotVacancySequence() ([]bool, error)
}

// Session is a PageSource owned by a single scan.
type Session interface {
	PageSource
	Close() error
}

// SessionOpener acquires a logged-in browsing session.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// StationFetcher turns one station's timetable page into a StationReport.
type StationFetcher struct {
	logger zerolog.Logger
}

// NewStationFetcher creates a StationFetcher.
func NewStationFetcher(logger zerolog.Logger) *StationFetcher {
	return &StationFetcher{logger: logger}
}

// Fetch visits endpoint on page and checks every vehicle against req.
// Any failure is returned as *StationFetchError and no report is produced.
func (f *StationFetcher) Fetch(ctx context.Context, page PageSource, endpoint StationEndpoint, req ReservationRequest) (*StationReport, error) {
	fail := func(op string, err error) (*StationReport, error) {
		return nil, &StationFetchError{Endpoint: endpoint, Op: op, Err: err}
	}

	if err := page.GotoStation(ctx, endpoint); err != nil {
		return fail("goto station", err)
	}

	name, err := page.ReadStationName(ctx)
	if err != nil {
		return fail("read station name", err)
	}

	// The steps below depend on the page state left by the previous one.
	if err := page.SelectDate(ctx, req.Start); err != nil {
		return fail("select date", err)
	}
	if err := page.SelectHour(ctx, req.Start.Hour()); err != nil {
		return fail("select hour", err)
	}
	if err := page.SubmitSearch(ctx); err != nil {
		return fail("submit search", err)
	}

	entries, err := page.ListVehicleEntries(ctx)
	if err != nil {
		return fail("list vehicles", err)
	}
	if len(entries) == 0 {
		return fail("list vehicles", errors.New("timetable lists no vehicles"))
	}

	begin, end := MapSlots(req.Start, req.DurationMinutes)

	report := &StationReport{
		Endpoint:    endpoint,
		StationName: name,
		Vehicles:    make([]VehicleAvailability, 0, len(entries)),
	}

	for i, entry := range entries {
		vehicle, err := readVehicle(entry, begin, end)
		if err != nil {
			return fail(fmt.Sprintf("read vehicle %d", i), err)
		}
		report.Vehicles = append(report.Vehicles, vehicle)
	}

	f.logger.Debug().
		Str("station", string(endpoint)).
		Str("station_name", name).
		Int("vehicles", len(report.Vehicles)).
		Int("slot_begin", begin).
		Int("slot_end", end).
		Msg("station timetable read")

	return report, nil
}

func readVehicle(entry VehicleEntry, begin, end int) (VehicleAvailability, error) {
	name, err := entry.ReadName()
	if err != nil {
		return VehicleAvailability{}, fmt.Errorf("name: %w", err)
	}

	text, err := entry.ReadStatusMarker()
	if err != nil {
		return VehicleAvailability{}, fmt.Errorf("status marker: %w", err)
	}
	status, err := ParseStatusMarker(text)
	if err != nil {
		return VehicleAvailability{}, err
	}

	slots, err := entry.ReadSlotVacancySequence()
	if err != nil {
		return VehicleAvailability{}, fmt.Errorf("slots: %w", err)
	}
	if end >= len(slots) {
		return VehicleAvailability{}, fmt.Errorf("timetable shows %d slots, window needs slot %d", len(slots), end)
	}

	return VehicleAvailability{
		CarName:     name,
		Status:      status,
		IsAvailable: IsFullyVacant(slots, begin, end),
	}, nil
}
