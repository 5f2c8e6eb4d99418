package availability

import "time"

// MapSlots converts a start time and duration into an inclusive slot index
// range on the timetable page for start's hour. The start minute must be
// aligned to SlotMinutes; callers validate that first.
func MapSlots(start time.Time, durationMinutes int) (begin, end int) {
	minute := start.Minute()
	begin = minute / SlotMinutes
	end = (minute + durationMinutes) / SlotMinutes
	return begin, end
}

// IsFullyVacant reports whether every slot in [begin, end] is vacant.
// It panics with *ContractViolation if the range does not fit in slots.
func IsFullyVacant(slots []bool, begin, end int) bool {
	if begin < 0 || begin > end || end >= len(slots) {
		panic(&ContractViolation{Begin: begin, End: end, Len: len(slots)})
	}

	if !slots[begin] {
		return false
	}
	for _, vacant := range slots[begin+1 : end+1] {
		if !vacant {
			return false
		}
	}
	return true
}
