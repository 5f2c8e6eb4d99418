// Package scanrequest turns user input from the CLI, the API and queued jobs
// into a reservation request and the list of stations to visit.
package scanrequest

import (
	"strings"
	"time"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// Local layouts accepted for a start time. They are read in the configured
// time zone. RFC 3339 input is converted to it.
var localLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Input is a scan as the user typed it.
type Input struct {
	Start           string
	DurationMinutes int
	// Stations overrides the configured list when non-empty.
	Stations []string
}

// Builder holds the defaults a request is completed with.
type Builder struct {
	// Location is the provider's time zone (default UTC).
	Location *time.Location

	// Stations is the configured station list.
	Stations []availability.StationEndpoint

	// MaxDurationMinutes caps the duration (default: availability.DefaultMaxDurationMinutes).
	MaxDurationMinutes int

	// Now returns the current time (default time.Now).
	Now func() time.Time
}

// Build parses and validates in. Every returned error is an
// *availability.ValidationError.
func (b Builder) Build(in Input) (availability.ReservationRequest, []availability.StationEndpoint, error) {
	start, err := ParseStart(in.Start, b.location())
	if err != nil {
		return availability.ReservationRequest{}, nil, err
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	if start.Before(now()) {
		return availability.ReservationRequest{}, nil, &availability.ValidationError{
			Field:  "start",
			Reason: start.Format("2006-01-02 15:04 MST") + " is in the past",
		}
	}

	req, err := availability.NewReservationRequest(start, in.DurationMinutes, b.MaxDurationMinutes)
	if err != nil {
		return availability.ReservationRequest{}, nil, err
	}

	stations := b.Stations
	if len(in.Stations) > 0 {
		stations = make([]availability.StationEndpoint, 0, len(in.Stations))
		for _, s := range in.Stations {
			s = strings.TrimSpace(s)
			if s == "" {
				return availability.ReservationRequest{}, nil, &availability.ValidationError{
					Field:  "stations",
					Reason: "must not contain empty entries",
				}
			}
			stations = append(stations, availability.StationEndpoint(s))
		}
	}
	if len(stations) == 0 {
		return availability.ReservationRequest{}, nil, &availability.ValidationError{
			Field:  "stations",
			Reason: "none given and none configured",
		}
	}

	return req, stations, nil
}

func (b Builder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// ParseStart reads value as RFC 3339 or as a local "2006-01-02 15:04" time
// in loc. The result is always expressed in loc.
func ParseStart(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &availability.ValidationError{Field: "start", Reason: "is required"}
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &availability.ValidationError{
		Field:  "start",
		Reason: "expected RFC 3339 or \"YYYY-MM-DD HH:MM\", got " + value,
	}
}
