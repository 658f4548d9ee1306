package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookwellhq/bookwell/internal/clock"
	"github.com/bookwellhq/bookwell/internal/model"
)

type fakeStore struct {
	businesses map[string]model.Business
	services   map[string]model.Service
	calendars  map[string]model.Calendar

	existing      []model.Appointment
	conflictCalls int
	saved         []model.Appointment
	saveErr       error
}

func (f *fakeStore) FindBusiness(_ context.Context, id string) (model.Business, bool, error) {
	b, ok := f.businesses[id]
	return b, ok, nil
}

func (f *fakeStore) FindService(_ context.Context, id string) (model.Service, bool, error) {
	s, ok := f.services[id]
	return s, ok, nil
}

func (f *fakeStore) FindCalendar(_ context.Context, id string) (model.Calendar, bool, error) {
	c, ok := f.calendars[id]
	return c, ok, nil
}

func (f *fakeStore) FindConflicting(_ context.Context, calendarID, staffID string, window model.TimeSlot) ([]model.Appointment, error) {
	f.conflictCalls++
	var out []model.Appointment
	for _, a := range f.existing {
		if a.CalendarID != calendarID {
			continue
		}
		if staffID != "" && a.StaffID != "" && a.StaffID != staffID {
			continue
		}
		if a.Slot.Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Save(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if f.saveErr != nil {
		return model.Appointment{}, f.saveErr
	}
	f.saved = append(f.saved, appt)
	return appt, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses: map[string]model.Business{
			"b1": {ID: "b1", Name: "Glow Clinic", IsActive: true},
		},
		services: map[string]model.Service{
			"s1": {ID: "s1", BusinessID: "b1", DurationMins: 60, IsActive: true,
				Price: model.Money{AmountCents: 7500, Currency: "usd"}},
		},
		calendars: map[string]model.Calendar{
			"c1": {ID: "c1", BusinessID: "b1", IsActive: true},
		},
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, now time.Time) *Orchestrator {
	t.Helper()
	v := mustValidator(t, DefaultConfig())
	return NewOrchestrator(store, store, store, store, v, clock.Fixed{At: now})
}

func TestBook_HappyPath(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	o := newTestOrchestrator(t, store, now)

	appt, err := o.Book(context.Background(), Request{
		BusinessID: "b1",
		CalendarID: "c1",
		ServiceID:  "s1",
		Slot:       model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
		Type:       model.TypeInPerson,
		Client:     model.ClientInfo{Name: "Dana", Email: "dana@example.com"},
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.ID == "" {
		t.Fatal("expected generated appointment id")
	}
	if appt.Status != model.StatusRequested {
		t.Fatalf("new appointment should be requested, got %s", appt.Status)
	}
	if appt.Pricing.BasePrice.AmountCents != 7500 || appt.Pricing.TotalAmount.AmountCents != 7500 {
		t.Fatalf("pricing should come from the service, got %+v", appt.Pricing)
	}
	if appt.Pricing.PaymentStatus != model.PaymentPending {
		t.Fatalf("new appointment should be payment pending, got %s", appt.Pricing.PaymentStatus)
	}
	if !appt.CreatedAt.Equal(now) {
		t.Fatalf("created_at should come from the injected clock, got %s", appt.CreatedAt)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected exactly one save, got %d", len(store.saved))
	}
}

func TestBook_ValidationStopsBeforeConflictQuery(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	o := newTestOrchestrator(t, store, now)

	_, err := o.Book(context.Background(), Request{
		BusinessID: "b1",
		CalendarID: "c1",
		ServiceID:  "s1",
		Slot:       model.TimeSlot{Start: now.Add(30 * time.Minute), End: now.Add(90 * time.Minute)},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonInsufficientNotice {
		t.Fatalf("expected insufficient_notice, got %v", err)
	}
	if store.conflictCalls != 0 {
		t.Fatalf("conflict query must not run after validation failure, got %d calls", store.conflictCalls)
	}
	if len(store.saved) != 0 {
		t.Fatal("nothing should be saved on validation failure")
	}
}

func TestBook_ConflictStopsBeforeSave(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	day := now.Truncate(24 * time.Hour)
	store.existing = []model.Appointment{
		{
			ID:         "existing-1",
			CalendarID: "c1",
			Status:     model.StatusConfirmed,
			Slot:       model.TimeSlot{Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)},
		},
	}
	o := newTestOrchestrator(t, store, now)

	_, err := o.Book(context.Background(), Request{
		BusinessID: "b1",
		CalendarID: "c1",
		ServiceID:  "s1",
		Slot:       model.TimeSlot{Start: day.Add(14*time.Hour + 30*time.Minute), End: day.Add(15*time.Hour + 30*time.Minute)},
	})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if cerr.AppointmentID != "existing-1" {
		t.Fatalf("conflict should name the existing appointment, got %q", cerr.AppointmentID)
	}
	if len(store.saved) != 0 {
		t.Fatal("no save call should occur on conflict")
	}
}

func TestBook_MissingEntities(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	o := newTestOrchestrator(t, store, now)
	slot := model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)}

	cases := []struct {
		name   string
		req    Request
		entity string
	}{
		{"business", Request{BusinessID: "nope", CalendarID: "c1", ServiceID: "s1", Slot: slot}, "business"},
		{"service", Request{BusinessID: "b1", CalendarID: "c1", ServiceID: "nope", Slot: slot}, "service"},
		{"calendar", Request{BusinessID: "b1", CalendarID: "nope", ServiceID: "s1", Slot: slot}, "calendar"},
	}
	for _, tc := range cases {
		_, err := o.Book(context.Background(), tc.req)
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Entity != tc.entity {
			t.Fatalf("%s: expected %s not found, got %v", tc.name, tc.entity, err)
		}
	}
}

func TestBook_StorageConflictReportedSameAsDetectorConflict(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.saveErr = ErrSlotUnavailable
	o := newTestOrchestrator(t, store, now)

	_, err := o.Book(context.Background(), Request{
		BusinessID: "b1",
		CalendarID: "c1",
		ServiceID:  "s1",
		Slot:       model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
	})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("lost race should surface as ConflictError, got %v", err)
	}
}

func TestBook_RepositoryErrorPropagates(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	boom := errors.New("connection refused")
	store.saveErr = boom
	o := newTestOrchestrator(t, store, now)

	_, err := o.Book(context.Background(), Request{
		BusinessID: "b1",
		CalendarID: "c1",
		ServiceID:  "s1",
		Slot:       model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("infrastructure errors must propagate unchanged, got %v", err)
	}
}
