package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/bookwellhq/bookwell/internal/model"
)

func activeEntities() Entities {
	return Entities{
		Business: &model.Business{ID: "b1", IsActive: true},
		Service:  &model.Service{ID: "s1", IsActive: true, Price: model.Money{AmountCents: 5000, Currency: "usd"}},
		Calendar: &model.Calendar{ID: "c1", IsActive: true},
	}
}

func mustValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	v, err := NewValidator(cfg)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestNewValidator_RejectsBadConfig(t *testing.T) {
	cases := []Config{
		{MinAdvanceBooking: 0, MaxDuration: 8 * time.Hour},
		{MinAdvanceBooking: -time.Minute, MaxDuration: 8 * time.Hour},
		{MinAdvanceBooking: 2 * time.Hour, MaxDuration: 0},
		{MinAdvanceBooking: 2 * time.Hour, MaxDuration: 8 * time.Hour, MaxAdvanceBooking: -time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewValidator(cfg); err == nil {
			t.Fatalf("case %d: expected config error for %+v", i, cfg)
		}
	}
}

func TestValidate_RuleOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	v := mustValidator(t, DefaultConfig())

	slot := func(startOffset, length time.Duration) model.TimeSlot {
		return model.TimeSlot{Start: now.Add(startOffset), End: now.Add(startOffset + length)}
	}

	cases := []struct {
		name   string
		slot   model.TimeSlot
		ents   Entities
		reason string
	}{
		{"past start", slot(-time.Hour, time.Hour), activeEntities(), ReasonTimeSlotInPast},
		{"start equals now", slot(0, time.Hour), activeEntities(), ReasonTimeSlotInPast},
		{"inside notice window", slot(30*time.Minute, time.Hour), activeEntities(), ReasonInsufficientNotice},
		{"too long", slot(3*time.Hour, 9*time.Hour), activeEntities(), ReasonInvalidDuration},
		{"zero length", slot(3*time.Hour, 0), activeEntities(), ReasonInvalidDuration},
	}
	for _, tc := range cases {
		err := v.Validate(now, tc.slot, tc.ents)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if verr.Reason != tc.reason {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.reason, verr.Reason)
		}
	}
}

func TestValidate_AdvanceWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.MaxAdvanceBooking = 30 * 24 * time.Hour
	v := mustValidator(t, cfg)

	far := model.TimeSlot{Start: now.AddDate(0, 0, 45), End: now.AddDate(0, 0, 45).Add(time.Hour)}
	err := v.Validate(now, far, activeEntities())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonAdvanceWindowExceeded {
		t.Fatalf("expected advance_window_exceeded, got %v", err)
	}

	near := model.TimeSlot{Start: now.AddDate(0, 0, 10), End: now.AddDate(0, 0, 10).Add(time.Hour)}
	if err := v.Validate(now, near, activeEntities()); err != nil {
		t.Fatalf("slot inside window should pass, got %v", err)
	}

	// Unset window means unbounded.
	v = mustValidator(t, DefaultConfig())
	if err := v.Validate(now, far, activeEntities()); err != nil {
		t.Fatalf("unbounded window should accept far slot, got %v", err)
	}
}

func TestValidate_MissingBeforeInactive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	v := mustValidator(t, DefaultConfig())
	slot := model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)}

	ents := activeEntities()
	ents.Business = nil
	var nf *NotFoundError
	if err := v.Validate(now, slot, ents); !errors.As(err, &nf) || nf.Entity != "business" {
		t.Fatalf("expected business not found, got %v", err)
	}

	ents = activeEntities()
	ents.Service = nil
	ents.Calendar = nil
	if err := v.Validate(now, slot, ents); !errors.As(err, &nf) || nf.Entity != "service" {
		t.Fatalf("service existence should be checked before calendar, got %v", err)
	}

	ents = activeEntities()
	ents.Business.IsActive = false
	ents.Service = nil
	if err := v.Validate(now, slot, ents); !errors.As(err, &nf) || nf.Entity != "service" {
		t.Fatalf("existence checks run before active checks, got %v", err)
	}
}

func TestValidate_InactiveOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	v := mustValidator(t, DefaultConfig())
	slot := model.TimeSlot{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)}

	cases := []struct {
		name   string
		mutate func(*Entities)
		reason string
	}{
		{"business", func(e *Entities) { e.Business.IsActive = false }, ReasonBusinessInactive},
		{"service", func(e *Entities) { e.Service.IsActive = false }, ReasonServiceInactive},
		{"calendar", func(e *Entities) { e.Calendar.IsActive = false }, ReasonCalendarInactive},
		{"business wins over calendar", func(e *Entities) {
			e.Business.IsActive = false
			e.Calendar.IsActive = false
		}, ReasonBusinessInactive},
	}
	for _, tc := range cases {
		ents := activeEntities()
		tc.mutate(&ents)
		err := v.Validate(now, slot, ents)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Reason != tc.reason {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.reason, err)
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	v := mustValidator(t, DefaultConfig())
	slot := model.TimeSlot{Start: now.Add(90 * time.Minute), End: now.Add(2 * time.Hour)}
	ents := activeEntities()

	first := v.Validate(now, slot, ents)
	second := v.Validate(now, slot, ents)
	var e1, e2 *ValidationError
	if !errors.As(first, &e1) || !errors.As(second, &e2) || e1.Reason != e2.Reason {
		t.Fatalf("validator not deterministic: %v vs %v", first, second)
	}
}
