package availability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwatch/slotwatch/internal/availability"
)

func at(hour, minute int) time.Time {
	return time.Date(2021, 1, 2, hour, minute, 0, 0, time.UTC)
}

func TestMapSlots(t *testing.T) {
	tests := []struct {
		name          string
		minute        int
		duration      int
		expectedBegin int
		expectedEnd   int
	}{
		{name: "on the hour, one slot", minute: 0, duration: 15, expectedBegin: 0, expectedEnd: 1},
		{name: "half past, ninety minutes", minute: 30, duration: 90, expectedBegin: 2, expectedEnd: 8},
		{name: "quarter to, one hour", minute: 45, duration: 60, expectedBegin: 3, expectedEnd: 7},
		{name: "maximum window", minute: 0, duration: 720, expectedBegin: 0, expectedEnd: 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			begin, end := availability.MapSlots(at(14, tt.minute), tt.duration)
			assert.Equal(t, tt.expectedBegin, begin)
			assert.Equal(t, tt.expectedEnd, end)
		})
	}
}

func TestMapSlots_GridProperty(t *testing.T) {
	for minute := 0; minute < 60; minute += availability.SlotMinutes {
		for duration := availability.SlotMinutes; duration <= availability.DefaultMaxDurationMinutes; duration += availability.SlotMinutes {
			begin, end := availability.MapSlots(at(9, minute), duration)
			require.Equal(t, minute/availability.SlotMinutes, begin)
			require.Equal(t, begin+duration/availability.SlotMinutes, end)
			require.GreaterOrEqual(t, end, begin)
		}
	}
}

func TestMapSlots_IgnoresHour(t *testing.T) {
	b1, e1 := availability.MapSlots(at(0, 15), 45)
	b2, e2 := availability.MapSlots(at(23, 15), 45)
	assert.Equal(t, b1, b2)
	assert.Equal(t, e1, e2)
}

func TestIsFullyVacant_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		slots    []bool
		begin    int
		end      int
		expected bool
	}{
		{name: "vacant prefix", slots: []bool{true, true, true, false, true}, begin: 0, end: 2, expected: true},
		{name: "occupied at begin", slots: []bool{false, true, true}, begin: 0, end: 2, expected: false},
		{name: "occupied mid range", slots: []bool{true, true, false, true}, begin: 0, end: 3, expected: false},
		{name: "occupied at end", slots: []bool{true, true, true, false}, begin: 1, end: 3, expected: false},
		{name: "single vacant slot", slots: []bool{false, true, false}, begin: 1, end: 1, expected: true},
		{name: "range after occupied slot", slots: []bool{false, true, true}, begin: 1, end: 2, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, availability.IsFullyVacant(tt.slots, tt.begin, tt.end))
		})
	}
}

func TestIsFullyVacant_FalseWhenBeginOccupied(t *testing.T) {
	slots := []bool{true, false, true, true, true, true}
	for end := 1; end < len(slots); end++ {
		assert.False(t, availability.IsFullyVacant(slots, 1, end), "end=%d", end)
	}
}

func TestIsFullyVacant_Monotonic(t *testing.T) {
	sequences := [][]bool{
		{true, true, true, false, true},
		{true, true, true, true, true, true},
		{false, true, true, false, true, true, true},
		{true, false, true, false, true, false},
	}

	for _, slots := range sequences {
		for begin := 0; begin < len(slots); begin++ {
			for end := begin; end < len(slots); end++ {
				if availability.IsFullyVacant(slots, begin, end) {
					continue
				}
				// Widening a non-vacant range never makes it vacant.
				for wider := end; wider < len(slots); wider++ {
					assert.False(t, availability.IsFullyVacant(slots, begin, wider),
						"slots=%v begin=%d end=%d", slots, begin, wider)
				}
				for lower := begin; lower >= 0; lower-- {
					assert.False(t, availability.IsFullyVacant(slots, lower, end),
						"slots=%v begin=%d end=%d", slots, lower, end)
				}
			}
		}
	}
}

func TestIsFullyVacant_ContractViolation(t *testing.T) {
	tests := []struct {
		name  string
		slots []bool
		begin int
		end   int
	}{
		{name: "end past sequence", slots: []bool{true, true}, begin: 0, end: 2},
		{name: "negative begin", slots: []bool{true, true}, begin: -1, end: 1},
		{name: "begin after end", slots: []bool{true, true, true}, begin: 2, end: 1},
		{name: "empty sequence", slots: nil, begin: 0, end: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r, "expected a panic")
				violation, ok := r.(*availability.ContractViolation)
				require.True(t, ok, "panic value should be *ContractViolation, got %T", r)
				assert.Equal(t, tt.begin, violation.Begin)
				assert.Equal(t, tt.end, violation.End)
				assert.Equal(t, len(tt.slots), violation.Len)
			}()
			availability.IsFullyVacant(tt.slots, tt.begin, tt.end)
		})
	}
}
