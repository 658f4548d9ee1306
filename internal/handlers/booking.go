package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookwellhq/bookwell/internal/availability"
	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/clock"
	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/storage"
)

// The handler depends on the slices of the stores it actually touches so
// tests can stand in fakes.
type appointmentDirectory interface {
	GetByID(ctx context.Context, businessID, id string) (model.Appointment, bool, error)
	Transition(ctx context.Context, businessID, id string, to model.AppointmentStatus, reason string) (model.Appointment, error)
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error)
	ListBookedSlots(ctx context.Context, calendarID string, start, end time.Time) ([]model.TimeSlot, error)
	CountActiveInRange(ctx context.Context, businessID string, start, end time.Time) (int, error)
}

type businessDirectory interface {
	FindBusiness(ctx context.Context, id string) (model.Business, bool, error)
	GetEntitlements(ctx context.Context, businessID string) (storage.Entitlements, bool, error)
}

type serviceDirectory interface {
	FindService(ctx context.Context, id string) (model.Service, bool, error)
}

type calendarDirectory interface {
	FindCalendar(ctx context.Context, id string) (model.Calendar, bool, error)
}

type userDirectory interface {
	FindActor(ctx context.Context, id string) (rbac.Actor, bool, error)
	GetByID(ctx context.Context, id string) (storage.User, bool, error)
}

type BookingHandler struct {
	orchestrator *booking.Orchestrator
	appts        appointmentDirectory
	businesses   businessDirectory
	services     serviceDirectory
	calendars    calendarDirectory
	evaluator    *rbac.Evaluator
	users        userDirectory
	logger       *slog.Logger
	clock        clock.Clock
}

func NewBookingHandler(
	orchestrator *booking.Orchestrator,
	appts appointmentDirectory,
	businesses businessDirectory,
	services serviceDirectory,
	calendars calendarDirectory,
	evaluator *rbac.Evaluator,
	users userDirectory,
	logger *slog.Logger,
	clk clock.Clock,
) *BookingHandler {
	return &BookingHandler{
		orchestrator: orchestrator,
		appts:        appts,
		businesses:   businesses,
		services:     services,
		calendars:    calendars,
		evaluator:    evaluator,
		users:        users,
		logger:       logger,
		clock:        clk,
	}
}

type createBookingRequest struct {
	BusinessID  string `json:"business_id"`
	CalendarID  string `json:"calendar_id"`
	ServiceID   string `json:"service_id"`
	StaffID     string `json:"staff_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Type        string `json:"type"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	CalendarID    string `json:"calendar_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	CreatedAt     string `json:"created_at"`
}

func appointmentItemFrom(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		CalendarID:    a.CalendarID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		StartTime:     a.Slot.Start.UTC().Format(time.RFC3339),
		EndTime:       a.Slot.End.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		Type:          string(a.Type),
		TotalCents:    a.Pricing.TotalAmount.AmountCents,
		Currency:      a.Pricing.TotalAmount.Currency,
		PaymentStatus: string(a.Pricing.PaymentStatus),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create books a new appointment. The endpoint is public so walk-in clients
// can book without an account.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CalendarID = strings.TrimSpace(req.CalendarID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.BusinessID == "" || req.CalendarID == "" || req.ServiceID == "" || req.ClientName == "" || req.ClientEmail == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	var endTime time.Time
	if strings.TrimSpace(req.EndTime) != "" {
		endTime, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
	} else {
		// No end time given: use the service's standard duration.
		svc, ok, err := h.services.FindService(r.Context(), req.ServiceID)
		if err != nil {
			http.Error(w, "failed to load service", http.StatusInternalServerError)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "service_not_found", "service not found")
			return
		}
		endTime = startTime.Add(time.Duration(svc.DurationMins) * time.Minute)
	}
	slot, err := model.NewTimeSlot(startTime, endTime)
	if err != nil {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	apptType := model.TypeInPerson
	if strings.TrimSpace(req.Type) == string(model.TypeVirtual) {
		apptType = model.TypeVirtual
	}

	ctx := r.Context()
	if err := h.enforceMonthlyAppointmentLimit(ctx, req.BusinessID, slot.Start); err != nil {
		if errors.Is(err, errAppointmentLimit) {
			writeError(w, http.StatusPaymentRequired, "appointment_limit_reached", err.Error())
			return
		}
		http.Error(w, "entitlements check failed", http.StatusInternalServerError)
		return
	}

	appt, err := h.orchestrator.Book(ctx, booking.Request{
		BusinessID: req.BusinessID,
		CalendarID: req.CalendarID,
		ServiceID:  req.ServiceID,
		StaffID:    strings.TrimSpace(req.StaffID),
		Slot:       slot,
		Type:       apptType,
		Client: model.ClientInfo{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: strings.TrimSpace(req.ClientPhone),
		},
		Notes: strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	h.logger.Info("appointment booked",
		"appointment_id", appt.ID, "business_id", appt.BusinessID, "calendar_id", appt.CalendarID)
	writeJSON(w, http.StatusCreated, appointmentItemFrom(appt))
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var nf *booking.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Entity+"_not_found", nf.Error())
		return
	}
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Reason, verr.Error())
		return
	}
	var cerr *booking.ConflictError
	if errors.As(err, &cerr) {
		writeError(w, http.StatusConflict, "slot_conflict", cerr.Error())
		return
	}
	http.Error(w, "failed to book appointment", http.StatusInternalServerError)
}

var errAppointmentLimit = errors.New("monthly appointment limit reached (upgrade required)")

func (h *BookingHandler) enforceMonthlyAppointmentLimit(ctx context.Context, businessID string, start time.Time) error {
	const defaultFreeMax = 200

	ent, ok, err := h.businesses.GetEntitlements(ctx, businessID)
	if err != nil {
		return err
	}
	max := defaultFreeMax
	if ok && ent.MaxMonthlyAppointments > 0 {
		max = ent.MaxMonthlyAppointments
	}

	startUTC := start.UTC()
	monthStart := time.Date(startUTC.Year(), startUTC.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	cnt, err := h.appts.CountActiveInRange(ctx, businessID, monthStart, monthEnd)
	if err != nil {
		return err
	}
	if cnt >= max {
		return errAppointmentLimit
	}
	return nil
}

type transitionRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusConfirmed, true)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusCompleted, true)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusCancelled, false)
}

// transition moves an appointment through its lifecycle. Confirm and
// complete are staff actions; cancel is also open to a client of the
// business, but only for appointments booked under their own email.
func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, to model.AppointmentStatus, staffOnly bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	actorID := ActorID(r)
	if staffOnly {
		decision, err := h.evaluator.CanActOnRole(ctx, actorID, rbac.RolePractitioner)
		if err != nil {
			http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			writeDecision(w, decision)
			return
		}
	}

	user, ok, err := h.users.GetByID(ctx, actorID)
	if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if user.Role != rbac.RolePlatformAdmin && user.BusinessID != req.BusinessID {
		writeError(w, http.StatusForbidden, string(rbac.ReasonScopeMismatch), "operation not permitted")
		return
	}
	if !staffOnly && rbac.RankOf(user.Role) < rbac.RankOf(rbac.RolePractitioner) {
		appt, ok, err := h.appts.GetByID(ctx, req.BusinessID, req.AppointmentID)
		if err != nil {
			http.Error(w, "failed to load appointment", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		if !strings.EqualFold(appt.Client.Email, user.Email) {
			writeError(w, http.StatusForbidden, string(rbac.ReasonInsufficientPermissions),
				"clients may only cancel their own appointments")
			return
		}
	}

	appt, err := h.appts.Transition(ctx, req.BusinessID, req.AppointmentID, to, strings.TrimSpace(req.Reason))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "invalid_transition", "appointment cannot move to "+string(to))
			return
		}
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, appointmentItemFrom(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	actor, ok, err := h.users.FindActor(ctx, ActorID(r))
	if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		businessID = actor.BusinessID
	}
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	if actor.Role != rbac.RolePlatformAdmin && actor.BusinessID != businessID {
		writeError(w, http.StatusForbidden, string(rbac.ReasonScopeMismatch), "operation not permitted")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.appts.ListByBusiness(ctx, businessID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentItemFrom(a))
	}
	writeJSON(w, http.StatusOK, items)
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Slots lists open booking slots for a calendar on a given day, stepped
// every 30 minutes unless step_mins overrides it.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	calendarID := strings.TrimSpace(q.Get("calendar_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if businessID == "" || calendarID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "business_id, calendar_id, service_id and date are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	biz, ok, err := h.businesses.FindBusiness(ctx, businessID)
	if err != nil {
		http.Error(w, "failed to load business", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "business_not_found", "business not found")
		return
	}
	svc, ok, err := h.services.FindService(ctx, serviceID)
	if err != nil {
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "service_not_found", "service not found")
		return
	}
	cal, ok, err := h.calendars.FindCalendar(ctx, calendarID)
	if err != nil {
		http.Error(w, "failed to load calendar", http.StatusInternalServerError)
		return
	}
	if !ok || cal.BusinessID != businessID {
		writeError(w, http.StatusNotFound, "calendar_not_found", "calendar not found")
		return
	}
	if !cal.IsActive {
		writeError(w, http.StatusBadRequest, "calendar_not_active", "calendar is not active")
		return
	}

	loc, err := time.LoadLocation(biz.Timezone)
	if err != nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	step := 30 * time.Minute
	if raw := strings.TrimSpace(q.Get("step_mins")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 240 {
			step = time.Duration(n) * time.Minute
		}
	}
	duration := time.Duration(svc.DurationMins) * time.Minute

	windowStart := day
	windowEnd := day.AddDate(0, 0, 1)
	busy, err := h.appts.ListBookedSlots(ctx, calendarID, windowStart, windowEnd)
	if err != nil {
		http.Error(w, "failed to load booked slots", http.StatusInternalServerError)
		return
	}

	open := availability.OpenSlots(windowStart, windowEnd, duration, step, busy, h.clock.Now())
	items := make([]slotItem, 0, len(open))
	for _, s := range open {
		items = append(items, slotItem{
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}
