package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bookwellhq/bookwell/internal/clock"
	"github.com/bookwellhq/bookwell/internal/model"
)

type BusinessLookup interface {
	FindBusiness(ctx context.Context, id string) (model.Business, bool, error)
}

type ServiceLookup interface {
	FindService(ctx context.Context, id string) (model.Service, bool, error)
}

type CalendarLookup interface {
	FindCalendar(ctx context.Context, id string) (model.Calendar, bool, error)
}

// AppointmentRepository persists appointments. Save must reject an
// overlapping write atomically and surface it as ErrSlotUnavailable; the
// in-memory conflict check alone cannot close the race between two
// concurrent bookings for the same slot.
type AppointmentRepository interface {
	FindConflicting(ctx context.Context, calendarID, staffID string, window model.TimeSlot) ([]model.Appointment, error)
	Save(ctx context.Context, appt model.Appointment) (model.Appointment, error)
}

// Request is a candidate booking before any validation.
type Request struct {
	BusinessID string
	CalendarID string
	ServiceID  string
	StaffID    string
	Slot       model.TimeSlot
	Type       model.AppointmentType
	Client     model.ClientInfo
	Notes      string
}

// Orchestrator runs a booking request through entity resolution, rule
// validation, conflict detection, and persistence, in that order. Every
// stage before Save is a pure read, so a failed or timed-out request is
// safe to retry.
type Orchestrator struct {
	businesses BusinessLookup
	services   ServiceLookup
	calendars  CalendarLookup
	appts      AppointmentRepository
	validator  *Validator
	detector   *Detector
	clock      clock.Clock
}

func NewOrchestrator(
	businesses BusinessLookup,
	services ServiceLookup,
	calendars CalendarLookup,
	appts AppointmentRepository,
	validator *Validator,
	clk clock.Clock,
) *Orchestrator {
	return &Orchestrator{
		businesses: businesses,
		services:   services,
		calendars:  calendars,
		appts:      appts,
		validator:  validator,
		detector:   NewDetector(validator.MaxDuration()),
		clock:      clk,
	}
}

// Book creates an appointment in requested status, or returns one of
// NotFoundError, ValidationError, ConflictError. Repository I/O errors
// propagate unchanged.
func (o *Orchestrator) Book(ctx context.Context, req Request) (model.Appointment, error) {
	ents, err := o.resolve(ctx, req)
	if err != nil {
		return model.Appointment{}, err
	}

	now := o.clock.Now()
	if err := o.validator.Validate(now, req.Slot, ents); err != nil {
		return model.Appointment{}, err
	}

	window := o.detector.QueryWindow(req.Slot)
	existing, err := o.appts.FindConflicting(ctx, req.CalendarID, req.StaffID, window)
	if err != nil {
		return model.Appointment{}, err
	}
	if id, found := o.detector.FirstConflict(req.Slot, existing); found {
		return model.Appointment{}, &ConflictError{AppointmentID: id}
	}

	appt := model.Appointment{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		CalendarID: req.CalendarID,
		ServiceID:  req.ServiceID,
		StaffID:    req.StaffID,
		Slot:       req.Slot,
		Status:     model.StatusRequested,
		Type:       req.Type,
		Client:     req.Client,
		Pricing: model.Pricing{
			BasePrice:     ents.Service.Price,
			TotalAmount:   ents.Service.Price,
			PaymentStatus: model.PaymentPending,
		},
		Notes:     req.Notes,
		CreatedAt: now,
	}

	saved, err := o.appts.Save(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return model.Appointment{}, &ConflictError{}
		}
		return model.Appointment{}, err
	}
	return saved, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (Entities, error) {
	var ents Entities

	biz, ok, err := o.businesses.FindBusiness(ctx, req.BusinessID)
	if err != nil {
		return Entities{}, err
	}
	if ok {
		ents.Business = &biz
	}

	svc, ok, err := o.services.FindService(ctx, req.ServiceID)
	if err != nil {
		return Entities{}, err
	}
	if ok {
		ents.Service = &svc
	}

	cal, ok, err := o.calendars.FindCalendar(ctx, req.CalendarID)
	if err != nil {
		return Entities{}, err
	}
	if ok {
		ents.Calendar = &cal
	}

	return ents, nil
}
