package availability

import (
	"errors"
	"fmt"
)

// Scan errors.
var (
	// ErrInvalidRequest is matched by every *ValidationError.
	ErrInvalidRequest = errors.New("invalid reservation request")

	// ErrStationFetch is matched by every *StationFetchError.
	ErrStationFetch = errors.New("station fetch failed")

	// ErrNoStations is returned when a scan is asked to visit no stations.
	ErrNoStations = errors.New("no stations configured")

	// ErrSessionUnavailable is returned when the browsing session cannot be opened.
	ErrSessionUnavailable = errors.New("provider session unavailable")
)

// ValidationError reports a ReservationRequest that violates the slot grid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRequest) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// StationFetchError reports a failed visit to a single station.
type StationFetchError struct {
	Endpoint StationEndpoint
	// Op is the page operation that failed, e.g. "select hour".
	Op  string
	Err error
}

func (e *StationFetchError) Error() string {
	return fmt.Sprintf("station %s: %s: %v", e.Endpoint, e.Op, e.Err)
}

func (e *StationFetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStationFetch) true.
func (e *StationFetchError) Is(target error) bool {
	return target == ErrStationFetch
}

// ContractViolation is the panic value raised when IsFullyVacant is called
// with indices outside the slot sequence. It signals a caller bug.
type ContractViolation struct {
	Begin, End, Len int
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("slot range [%d, %d] outside sequence of length %d", c.Begin, c.End, c.Len)
}
