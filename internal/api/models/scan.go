package models

import (
	"github.com/slotwatch/slotwatch/internal/availability"
)

// CreateScanRequest is the body of POST /v1/scans.
type CreateScanRequest struct {
	// Start is RFC 3339 or "YYYY-MM-DD HH:MM" in the provider's time zone.
	Start           string   `json:"start"`
	DurationMinutes int      `json:"durationMinutes"`
	Stations        []string `json:"stations,omitempty"`
}

// Scan is a completed scan.
type Scan struct {
	*availability.ScanResult

	AvailableCount int   `json:"availableCount"`
	DurationMs     int64 `json:"durationMs"`
}

// NewScan wraps a scan result for the API.
func NewScan(result *availability.ScanResult) Scan {
	return Scan{
		ScanResult:     result,
		AvailableCount: result.AvailableCount(),
		DurationMs:     result.Duration().Milliseconds(),
	}
}

// ScanSummary is one entry of the scan list.
type ScanSummary struct {
	ID              string    `json:"id"`
	Start           Timestamp `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
	StationCount    int       `json:"stationCount"`
	FailureCount    int       `json:"failureCount"`
	AvailableCount  int       `json:"availableCount"`
	StartedAt       Timestamp `json:"startedAt"`
}

// NewScanSummary summarises a scan result.
func NewScanSummary(result *availability.ScanResult) ScanSummary {
	return ScanSummary{
		ID:              result.ID,
		Start:           Timestamp(result.Request.Start),
		DurationMinutes: result.Request.DurationMinutes,
		StationCount:    len(result.Reports) + len(result.Failures),
		FailureCount:    len(result.Failures),
		AvailableCount:  result.AvailableCount(),
		StartedAt:       Timestamp(result.StartedAt),
	}
}

// ScanList is the response of GET /v1/scans.
type ScanList struct {
	Items []ScanSummary     `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
