package availability_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// fakeVehicle is one vehicle block served by fakePage.
type fakeVehicle struct {
	name   string
	marker string
	slots  []bool
}

// fakeStation describes the pages fakePage serves for one endpoint.
type fakeStation struct {
	name     string
	vehicles []fakeVehicle
	// failOn makes the named operation return the error.
	failOn map[string]error
	// block makes GotoStation wait until the context is done.
	block bool
}

// fakePage is an in-memory availability.Session.
type fakePage struct {
	stations map[availability.StationEndpoint]*fakeStation
	current  *fakeStation
	calls    []string
	dates    []time.Time
	hours    []int
	closed   atomic.Bool
}

func newFakePage(stations map[availability.StationEndpoint]*fakeStation) *fakePage {
	return &fakePage{stations: stations}
}

func (p *fakePage) fail(op string) error {
	if p.current == nil || p.current.failOn == nil {
		return nil
	}
	return p.current.failOn[op]
}

func (p *fakePage) GotoStation(ctx context.Context, endpoint availability.StationEndpoint) error {
	p.calls = append(p.calls, "goto:"+string(endpoint))
	station, ok := p.stations[endpoint]
	if !ok {
		return fmt.Errorf("no page for %s", endpoint)
	}
	p.current = station
	if station.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.fail("goto")
}

func (p *fakePage) ReadStationName(context.Context) (string, error) {
	p.calls = append(p.calls, "name")
	if err := p.fail("name"); err != nil {
		return "", err
	}
	return p.current.name, nil
}

func (p *fakePage) SelectDate(_ context.Context, date time.Time) error {
	p.calls = append(p.calls, "date")
	p.dates = append(p.dates, date)
	return p.fail("date")
}

func (p *fakePage) SelectHour(_ context.Context, hour int) error {
	p.calls = append(p.calls, "hour")
	p.hours = append(p.hours, hour)
	return p.fail("hour")
}

func (p *fakePage) SubmitSearch(context.Context) error {
	p.calls = append(p.calls, "submit")
	return p.fail("submit")
}

func (p *fakePage) ListVehicleEntries(context.Context) ([]availability.VehicleEntry, error) {
	p.calls = append(p.calls, "list")
	if err := p.fail("list"); err != nil {
		return nil, err
	}
	entries := make([]availability.VehicleEntry, 0, len(p.current.vehicles))
	for _, v := range p.current.vehicles {
		entries = append(entries, fakeEntry{v: v, failOn: p.current.failOn})
	}
	return entries, nil
}

func (p *fakePage) Close() error {
	p.closed.Store(true)
	return nil
}

type fakeEntry struct {
	v      fakeVehicle
	failOn map[string]error
}

func (e fakeEntry) ReadName() (string, error) {
	if err := e.failOn["vehicle name"]; err != nil {
		return "", err
	}
	return e.v.name, nil
}

func (e fakeEntry) ReadStatusMarker() (string, error) {
	return e.v.marker, nil
}

func (e fakeEntry) ReadSlotVacancySequence() ([]bool, error) {
	return e.v.slots, nil
}

// fakeOpener hands out one fakePage.
type fakeOpener struct {
	page  *fakePage
	err   error
	opens atomic.Int32
}

func (o *fakeOpener) Open(context.Context) (availability.Session, error) {
	o.opens.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.page, nil
}

var errTimeout = errors.New("page load timed out")

// vacant returns n slots that are all vacant.
func vacant(n int) []bool {
	slots := make([]bool, n)
	for i := range slots {
		slots[i] = true
	}
	return slots
}

// occupiedAt returns n vacant slots with the given indices occupied.
func occupiedAt(n int, idx ...int) []bool {
	slots := vacant(n)
	for _, i := range idx {
		slots[i] = false
	}
	return slots
}
