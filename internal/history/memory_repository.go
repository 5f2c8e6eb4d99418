package history

import (
	"context"
	"sort"
	"sync"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// DefaultMemoryCapacity is the number of scans InMemoryRepository keeps.
const DefaultMemoryCapacity = 200

// InMemoryRepository keeps the most recent scans in memory. Once full, the
// oldest scan is dropped on Save.
type InMemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	scans    map[string]*availability.ScanResult
}

// NewInMemoryRepository creates a repository holding at most capacity scans
// (DefaultMemoryCapacity if capacity is not positive).
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryRepository{
		capacity: capacity,
		scans:    make(map[string]*availability.ScanResult),
	}
}

// Save stores a copy of result.
func (r *InMemoryRepository) Save(_ context.Context, result *availability.ScanResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scans[result.ID] = clone(result)

	for len(r.scans) > r.capacity {
		delete(r.scans, r.sortedLocked()[len(r.scans)-1].ID)
	}
	return nil
}

// Get retrieves a scan by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*availability.ScanResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scans[id]
	if !ok {
		return nil, ErrScanNotFound
	}
	return clone(s), nil
}

// List returns the most recent scans, newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*availability.ScanResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedLocked()
	if limit := opts.EffectiveLimit(); len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]*availability.ScanResult, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, clone(s))
	}
	return out, nil
}

// sortedLocked returns the stored scans newest first, ties broken by ID.
func (r *InMemoryRepository) sortedLocked() []*availability.ScanResult {
	all := make([]*availability.ScanResult, 0, len(r.scans))
	for _, s := range r.scans {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})
	return all
}

func clone(r *availability.ScanResult) *availability.ScanResult {
	cpy := *r
	if r.Reports != nil {
		cpy.Reports = make([]availability.StationReport, len(r.Reports))
		for i, report := range r.Reports {
			if report.Vehicles != nil {
				report.Vehicles = append(make([]availability.VehicleAvailability, 0, len(report.Vehicles)), report.Vehicles...)
			}
			cpy.Reports[i] = report
		}
	}
	if r.Failures != nil {
		cpy.Failures = append(make([]availability.StationFailure, 0, len(r.Failures)), r.Failures...)
	}
	return &cpy
}
