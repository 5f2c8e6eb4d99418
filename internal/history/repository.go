// Package history stores finished scan results so they can be listed and
// fetched again by ID.
package history

import (
	"context"
	"errors"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// ErrScanNotFound is returned when no scan has the requested ID.
var ErrScanNotFound = errors.New("scan not found")

const (
	// DefaultListLimit is used when ListOptions.Limit is zero.
	DefaultListLimit = 20

	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 100
)

// ListOptions contains options for listing scans.
type ListOptions struct {
	Limit int
}

// EffectiveLimit clamps Limit to [1, MaxListLimit], using DefaultListLimit
// when it is not positive.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Repository defines the interface for scan result persistence.
type Repository interface {
	// Save stores result, replacing any earlier result with the same ID.
	Save(ctx context.Context, result *availability.ScanResult) error

	// Get retrieves a scan by ID.
	Get(ctx context.Context, id string) (*availability.ScanResult, error)

	// List returns the most recent scans, newest first.
	List(ctx context.Context, opts ListOptions) ([]*availability.ScanResult, error)
}
