package booking

import (
	"time"

	"github.com/bookwellhq/bookwell/internal/model"
)

// Detector decides whether a candidate slot collides with existing
// appointments on the same calendar (and staff member, when set).
type Detector struct {
	maxDuration time.Duration
}

func NewDetector(maxDuration time.Duration) *Detector {
	return &Detector{maxDuration: maxDuration}
}

// QueryWindow widens the candidate slot by the maximum appointment duration
// on both sides, so any stored appointment that could overlap the candidate
// falls inside it.
func (d *Detector) QueryWindow(slot model.TimeSlot) model.TimeSlot {
	return model.TimeSlot{
		Start: slot.Start.Add(-d.maxDuration),
		End:   slot.End.Add(d.maxDuration),
	}
}

// FirstConflict returns the id of the first existing appointment whose slot
// overlaps the candidate. Cancelled appointments never block; a requested
// hold blocks the same as a confirmed one.
func (d *Detector) FirstConflict(candidate model.TimeSlot, existing []model.Appointment) (string, bool) {
	for _, appt := range existing {
		if appt.Status == model.StatusCancelled {
			continue
		}
		if candidate.Overlaps(appt.Slot) {
			return appt.ID, true
		}
	}
	return "", false
}
