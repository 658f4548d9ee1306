package booking

import (
	"testing"
	"time"

	"github.com/bookwellhq/bookwell/internal/model"
)

func TestOverlapSymmetry(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		{Start: base, End: base.Add(time.Hour)},
		{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)},
		{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
		{Start: base.Add(3 * time.Hour), End: base.Add(4 * time.Hour)},
	}
	for _, a := range slots {
		for _, b := range slots {
			if a.Overlaps(b) != b.Overlaps(a) {
				t.Fatalf("overlap not symmetric for %v and %v", a, b)
			}
		}
	}
}

func TestBackToBackDoesNotConflict(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	existing := []model.Appointment{
		{ID: "a1", Status: model.StatusConfirmed, Slot: model.TimeSlot{Start: base, End: base.Add(time.Hour)}},
	}
	d := NewDetector(8 * time.Hour)

	candidate := model.TimeSlot{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	if id, found := d.FirstConflict(candidate, existing); found {
		t.Fatalf("back-to-back slot should not conflict, got %s", id)
	}

	before := model.TimeSlot{Start: base.Add(-time.Hour), End: base}
	if id, found := d.FirstConflict(before, existing); found {
		t.Fatalf("slot ending at existing start should not conflict, got %s", id)
	}
}

func TestFirstConflict_StatusFiltering(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	slot := model.TimeSlot{Start: base, End: base.Add(time.Hour)}
	candidate := model.TimeSlot{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}
	d := NewDetector(8 * time.Hour)

	if id, found := d.FirstConflict(candidate, []model.Appointment{
		{ID: "cancelled", Status: model.StatusCancelled, Slot: slot},
	}); found {
		t.Fatalf("cancelled appointment should not block, got %s", id)
	}

	// An unconfirmed hold blocks the slot the same as a confirmed booking.
	for _, status := range []model.AppointmentStatus{model.StatusRequested, model.StatusConfirmed} {
		id, found := d.FirstConflict(candidate, []model.Appointment{
			{ID: "held", Status: status, Slot: slot},
		})
		if !found || id != "held" {
			t.Fatalf("%s appointment should block, got found=%v id=%s", status, found, id)
		}
	}
}

func TestFirstConflict_ReturnsFirstMatch(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	candidate := model.TimeSlot{Start: base, End: base.Add(2 * time.Hour)}
	d := NewDetector(8 * time.Hour)

	existing := []model.Appointment{
		{ID: "skip", Status: model.StatusCancelled, Slot: model.TimeSlot{Start: base, End: base.Add(time.Hour)}},
		{ID: "first", Status: model.StatusRequested, Slot: model.TimeSlot{Start: base.Add(15 * time.Minute), End: base.Add(45 * time.Minute)}},
		{ID: "second", Status: model.StatusConfirmed, Slot: model.TimeSlot{Start: base.Add(time.Hour), End: base.Add(90 * time.Minute)}},
	}
	id, found := d.FirstConflict(candidate, existing)
	if !found || id != "first" {
		t.Fatalf("expected first non-cancelled overlap, got found=%v id=%s", found, id)
	}
}

func TestQueryWindow(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	d := NewDetector(8 * time.Hour)
	slot := model.TimeSlot{Start: base, End: base.Add(time.Hour)}

	w := d.QueryWindow(slot)
	if !w.Start.Equal(base.Add(-8 * time.Hour)) {
		t.Fatalf("window start should be padded by max duration, got %s", w.Start)
	}
	if !w.End.Equal(base.Add(9 * time.Hour)) {
		t.Fatalf("window end should be padded by max duration, got %s", w.End)
	}
}
