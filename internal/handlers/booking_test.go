package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookwellhq/bookwell/internal/clock"
	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/storage"
)

// fakeBookingStore backs the business, service, calendar and appointment
// lookups with a single in-memory fixture.
type fakeBookingStore struct {
	biz  model.Business
	svc  model.Service
	cal  model.Calendar
	appt model.Appointment

	transitions []model.AppointmentStatus
}

func (f *fakeBookingStore) FindBusiness(ctx context.Context, id string) (model.Business, bool, error) {
	if id != f.biz.ID {
		return model.Business{}, false, nil
	}
	return f.biz, true, nil
}

func (f *fakeBookingStore) GetEntitlements(ctx context.Context, businessID string) (storage.Entitlements, bool, error) {
	return storage.Entitlements{}, false, nil
}

func (f *fakeBookingStore) FindService(ctx context.Context, id string) (model.Service, bool, error) {
	if id != f.svc.ID {
		return model.Service{}, false, nil
	}
	return f.svc, true, nil
}

func (f *fakeBookingStore) FindCalendar(ctx context.Context, id string) (model.Calendar, bool, error) {
	if id != f.cal.ID {
		return model.Calendar{}, false, nil
	}
	return f.cal, true, nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, businessID, id string) (model.Appointment, bool, error) {
	if businessID != f.appt.BusinessID || id != f.appt.ID {
		return model.Appointment{}, false, nil
	}
	return f.appt, true, nil
}

func (f *fakeBookingStore) Transition(ctx context.Context, businessID, id string, to model.AppointmentStatus, reason string) (model.Appointment, error) {
	f.transitions = append(f.transitions, to)
	a := f.appt
	a.Status = to
	return a, nil
}

func (f *fakeBookingStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	return nil, nil
}

func (f *fakeBookingStore) ListBookedSlots(ctx context.Context, calendarID string, start, end time.Time) ([]model.TimeSlot, error) {
	return nil, nil
}

func (f *fakeBookingStore) CountActiveInRange(ctx context.Context, businessID string, start, end time.Time) (int, error) {
	return 0, nil
}

type fakeUserDirectory struct {
	user storage.User
}

func (f *fakeUserDirectory) GetByID(ctx context.Context, id string) (storage.User, bool, error) {
	if id != f.user.ID {
		return storage.User{}, false, nil
	}
	return f.user, true, nil
}

func (f *fakeUserDirectory) FindActor(ctx context.Context, id string) (rbac.Actor, bool, error) {
	u, ok, err := f.GetByID(ctx, id)
	if err != nil || !ok {
		return rbac.Actor{}, ok, err
	}
	return rbac.Actor{ID: u.ID, Role: u.Role, BusinessID: u.BusinessID}, true, nil
}

func newTestBookingHandler(store *fakeBookingStore, users *fakeUserDirectory, now time.Time) *BookingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingHandler(nil, store, store, store, store,
		rbac.NewEvaluator(users), users, logger, clock.Fixed{At: now})
}

func defaultBookingFixture() *fakeBookingStore {
	return &fakeBookingStore{
		biz: model.Business{ID: "biz-1", Name: "Studio", Timezone: "UTC", IsActive: true},
		svc: model.Service{ID: "svc-1", BusinessID: "biz-1", Name: "Cut", DurationMins: 60, IsActive: true},
		cal: model.Calendar{ID: "cal-1", BusinessID: "biz-1", Name: "Chair 1", IsActive: true},
		appt: model.Appointment{
			ID:         "appt-1",
			BusinessID: "biz-1",
			CalendarID: "cal-1",
			Status:     model.StatusRequested,
			Client:     model.ClientInfo{Email: "owner@client.test", Name: "Owner"},
		},
	}
}

func slotsRequest(calendarID string) *http.Request {
	return httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?business_id=biz-1&calendar_id="+calendarID+"&service_id=svc-1&date=2026-03-10", nil)
}

func TestSlotsUnknownCalendar(t *testing.T) {
	store := defaultBookingFixture()
	h := newTestBookingHandler(store, &fakeUserDirectory{}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	h.Slots(rec, slotsRequest("cal-missing"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown calendar should be 404, got %d", rec.Code)
	}
}

func TestSlotsCalendarFromOtherBusiness(t *testing.T) {
	store := defaultBookingFixture()
	store.cal.BusinessID = "biz-other"
	h := newTestBookingHandler(store, &fakeUserDirectory{}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	h.Slots(rec, slotsRequest("cal-1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("calendar of another business should be 404, got %d", rec.Code)
	}
}

func TestSlotsInactiveCalendar(t *testing.T) {
	store := defaultBookingFixture()
	store.cal.IsActive = false
	h := newTestBookingHandler(store, &fakeUserDirectory{}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	h.Slots(rec, slotsRequest("cal-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inactive calendar should be 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body["error"] != "calendar_not_active" {
		t.Fatalf("expected calendar_not_active, got %q", body["error"])
	}
}

func TestSlotsOpenDay(t *testing.T) {
	store := defaultBookingFixture()
	h := newTestBookingHandler(store, &fakeUserDirectory{}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	h.Slots(rec, slotsRequest("cal-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid slots body: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("a free day should expose open slots")
	}
}

func cancelRequest(t *testing.T, actorID string) *http.Request {
	t.Helper()
	body, err := json.Marshal(transitionRequest{BusinessID: "biz-1", AppointmentID: "appt-1"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", bytes.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), actorIDKey, actorID))
}

func TestCancelByOwnClient(t *testing.T) {
	store := defaultBookingFixture()
	users := &fakeUserDirectory{user: storage.User{
		ID:         "user-1",
		BusinessID: "biz-1",
		Role:       rbac.RoleRegularClient,
		Email:      "Owner@Client.Test", // email matching is case-insensitive
		IsActive:   true,
	}}
	h := newTestBookingHandler(store, users, time.Now().UTC())

	rec := httptest.NewRecorder()
	h.Cancel(rec, cancelRequest(t, "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("client cancelling their own appointment should be 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.transitions) != 1 || store.transitions[0] != model.StatusCancelled {
		t.Fatalf("expected one cancellation, got %v", store.transitions)
	}
}

func TestCancelOtherClientsAppointmentForbidden(t *testing.T) {
	store := defaultBookingFixture()
	users := &fakeUserDirectory{user: storage.User{
		ID:         "user-2",
		BusinessID: "biz-1",
		Role:       rbac.RoleRegularClient,
		Email:      "someone-else@client.test",
		IsActive:   true,
	}}
	h := newTestBookingHandler(store, users, time.Now().UTC())

	rec := httptest.NewRecorder()
	h.Cancel(rec, cancelRequest(t, "user-2"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client cancelling another client's appointment should be 403, got %d", rec.Code)
	}
	if len(store.transitions) != 0 {
		t.Fatalf("no transition should run, got %v", store.transitions)
	}
}

func TestCancelByStaff(t *testing.T) {
	store := defaultBookingFixture()
	users := &fakeUserDirectory{user: storage.User{
		ID:         "staff-1",
		BusinessID: "biz-1",
		Role:       rbac.RolePractitioner,
		Email:      "staff@biz.test",
		IsActive:   true,
	}}
	h := newTestBookingHandler(store, users, time.Now().UTC())

	rec := httptest.NewRecorder()
	h.Cancel(rec, cancelRequest(t, "staff-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("staff may cancel any appointment in the business, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.transitions) != 1 {
		t.Fatalf("expected one cancellation, got %v", store.transitions)
	}
}
