// Package availability decides which car-share vehicles can be reserved for a
// requested window and aggregates the answer across stations.
package availability

import (
	"fmt"
	"time"
)

const (
	// SlotMinutes is the width of one timetable slot.
	SlotMinutes = 15

	// DefaultMaxDurationMinutes is the widest window one timetable page shows.
	DefaultMaxDurationMinutes = 720
)

// StationEndpoint identifies a station. It is either a full station page URL
// or a bare provider station code; the page source resolves it.
type StationEndpoint string

// StatusMarker is the provider's per-vehicle status indicator shown next to
// the timetable. It is independent of the per-slot vacancy flags.
type StatusMarker string

const (
	StatusAvailable   StatusMarker = "○"
	StatusPartial     StatusMarker = "△"
	StatusUnavailable StatusMarker = "×"
)

// ParseStatusMarker maps the text of a status cell to a StatusMarker.
func ParseStatusMarker(text string) (StatusMarker, error) {
	switch m := StatusMarker(text); m {
	case StatusAvailable, StatusPartial, StatusUnavailable:
		return m, nil
	default:
		return "", fmt.Errorf("unknown status marker %q", text)
	}
}

// Label returns a short English description of the marker.
func (m StatusMarker) Label() string {
	switch m {
	case StatusAvailable:
		return "circle"
	case StatusPartial:
		return "triangle"
	case StatusUnavailable:
		return "cross"
	default:
		return "unknown"
	}
}

// ReservationRequest is a validated request for a reservation window.
// Construct it with NewReservationRequest.
type ReservationRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
}

// NewReservationRequest validates start and duration against the slot grid.
// maxDurationMinutes <= 0 selects DefaultMaxDurationMinutes.
func NewReservationRequest(start time.Time, durationMinutes, maxDurationMinutes int) (ReservationRequest, error) {
	req := ReservationRequest{Start: start, DurationMinutes: durationMinutes}
	if err := req.Validate(maxDurationMinutes); err != nil {
		return ReservationRequest{}, err
	}
	return req, nil
}

// Validate checks the slot-alignment and duration-grid invariants.
func (r ReservationRequest) Validate(maxDurationMinutes int) error {
	if maxDurationMinutes <= 0 {
		maxDurationMinutes = DefaultMaxDurationMinutes
	}

	if r.Start.IsZero() {
		return &ValidationError{Field: "start", Reason: "is required"}
	}
	if r.Start.Minute()%SlotMinutes != 0 {
		return &ValidationError{
			Field:  "start",
			Reason: fmt.Sprintf("minute %d is not aligned to the %d-minute grid", r.Start.Minute(), SlotMinutes),
		}
	}
	if r.Start.Second() != 0 || r.Start.Nanosecond() != 0 {
		return &ValidationError{Field: "start", Reason: "must not carry seconds"}
	}
	if r.DurationMinutes <= 0 {
		return &ValidationError{Field: "durationMinutes", Reason: "must be positive"}
	}
	if r.DurationMinutes%SlotMinutes != 0 {
		return &ValidationError{
			Field:  "durationMinutes",
			Reason: fmt.Sprintf("%d is not a multiple of %d", r.DurationMinutes, SlotMinutes),
		}
	}
	if r.DurationMinutes > maxDurationMinutes {
		return &ValidationError{
			Field:  "durationMinutes",
			Reason: fmt.Sprintf("%d exceeds the maximum of %d", r.DurationMinutes, maxDurationMinutes),
		}
	}
	return nil
}

// End returns the end of the requested window.
func (r ReservationRequest) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// VehicleAvailability is the result for one vehicle at one station.
type VehicleAvailability struct {
	CarName     string       `json:"carName"`
	Status      StatusMarker `json:"status"`
	IsAvailable bool         `json:"isAvailable"`
}

// StationReport holds the vehicles of one station in page order.
type StationReport struct {
	Endpoint    StationEndpoint       `json:"endpoint"`
	StationName string                `json:"stationName"`
	Vehicles    []VehicleAvailability `json:"vehicles"`
}

// AvailableVehicles returns the vehicles free for the whole window.
func (r *StationReport) AvailableVehicles() []VehicleAvailability {
	var out []VehicleAvailability
	for _, v := range r.Vehicles {
		if v.IsAvailable {
			out = append(out, v)
		}
	}
	return out
}

// StationFailure records a station that could not be checked.
type StationFailure struct {
	Endpoint StationEndpoint `json:"endpoint"`
	Error    string          `json:"error"`
}

// ScanResult is the outcome of one scan. Reports and Failures are both in
// configured station order.
type ScanResult struct {
	ID         string             `json:"id"`
	Request    ReservationRequest `json:"request"`
	Reports    []StationReport    `json:"reports"`
	Failures   []StationFailure   `json:"failures"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

// HasFailures reports whether any station could not be checked.
func (r *ScanResult) HasFailures() bool {
	return len(r.Failures) > 0
}

// AvailableCount returns the number of available vehicles across all reports.
func (r *ScanResult) AvailableCount() int {
	n := 0
	for i := range r.Reports {
		n += len(r.Reports[i].AvailableVehicles())
	}
	return n
}

// Duration returns how long the scan took.
func (r *ScanResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
