// Package availability computes open appointment slots for a calendar day.
package availability

import (
	"time"

	"github.com/bookwellhq/bookwell/internal/model"
)

// OpenSlots returns candidate slots of the given duration within
// [windowStart, windowEnd) that do not overlap any busy interval and do not
// start before now. Candidates are generated every step from windowStart.
//
// All times are expected to be in the business's timezone.
func OpenSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []model.TimeSlot, now time.Time) []model.TimeSlot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []model.TimeSlot
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		candidate := model.TimeSlot{Start: t, End: t.Add(duration)}
		if !overlapsAny(candidate, busy) {
			slots = append(slots, candidate)
		}
	}
	return slots
}

func overlapsAny(candidate model.TimeSlot, busy []model.TimeSlot) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
