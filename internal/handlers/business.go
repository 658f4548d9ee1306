package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/storage"
)

// BusinessHandler covers the administrative surface: services, calendars
// and staff of the caller's business.
type BusinessHandler struct {
	services  *storage.ServiceStore
	calendars *storage.CalendarStore
	staff     *storage.StaffStore
	users     *storage.UserStore
	evaluator *rbac.Evaluator
	logger    *slog.Logger
}

func NewBusinessHandler(
	services *storage.ServiceStore,
	calendars *storage.CalendarStore,
	staff *storage.StaffStore,
	users *storage.UserStore,
	evaluator *rbac.Evaluator,
	logger *slog.Logger,
) *BusinessHandler {
	return &BusinessHandler{
		services:  services,
		calendars: calendars,
		staff:     staff,
		users:     users,
		evaluator: evaluator,
		logger:    logger,
	}
}

// requireAdmin checks that the caller holds at least business_admin rank and
// returns the business the mutation applies to. Platform admins may target
// any business via business_id; everyone else acts on their own.
func (h *BusinessHandler) requireAdmin(w http.ResponseWriter, r *http.Request, businessID string) (string, bool) {
	ctx := r.Context()
	actorID := ActorID(r)

	decision, err := h.evaluator.CanActOnRole(ctx, actorID, rbac.RoleBusinessAdmin)
	if err != nil {
		http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
		return "", false
	}
	if !decision.Allowed {
		writeDecision(w, decision)
		return "", false
	}

	actor, ok, err := h.users.FindActor(ctx, actorID)
	if err != nil || !ok {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return "", false
	}
	if actor.Role == rbac.RolePlatformAdmin {
		if businessID == "" {
			http.Error(w, "business_id required", http.StatusBadRequest)
			return "", false
		}
		return businessID, true
	}
	if businessID != "" && businessID != actor.BusinessID {
		writeError(w, http.StatusForbidden, string(rbac.ReasonScopeMismatch), "operation not permitted")
		return "", false
	}
	return actor.BusinessID, true
}

type createServiceRequest struct {
	BusinessID   string `json:"business_id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_mins"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	Description  string `json:"description"`
}

func (h *BusinessHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DurationMins <= 0 || req.PriceCents < 0 {
		http.Error(w, "name, positive duration_mins and price_cents required", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	businessID, ok := h.requireAdmin(w, r, strings.TrimSpace(req.BusinessID))
	if !ok {
		return
	}

	svc := model.Service{
		ID:           uuid.NewString(),
		BusinessID:   businessID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		Price:        model.Money{AmountCents: req.PriceCents, Currency: strings.ToLower(req.Currency)},
		Description:  strings.TrimSpace(req.Description),
		IsActive:     true,
	}
	if err := h.services.Create(r.Context(), svc); err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}
	h.logger.Info("service created", "service_id", svc.ID, "business_id", businessID)
	writeJSON(w, http.StatusCreated, svc)
}

func (h *BusinessHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	services, err := h.services.ListByBusiness(r.Context(), businessID)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

type createCalendarRequest struct {
	BusinessID string `json:"business_id"`
	LocationID string `json:"location_id"`
	Name       string `json:"name"`
}

func (h *BusinessHandler) CreateCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createCalendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	businessID, ok := h.requireAdmin(w, r, strings.TrimSpace(req.BusinessID))
	if !ok {
		return
	}

	cal := model.Calendar{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		LocationID: strings.TrimSpace(req.LocationID),
		Name:       req.Name,
		IsActive:   true,
	}
	if err := h.calendars.Create(r.Context(), cal); err != nil {
		http.Error(w, "failed to create calendar", http.StatusInternalServerError)
		return
	}
	h.logger.Info("calendar created", "calendar_id", cal.ID, "business_id", businessID)
	writeJSON(w, http.StatusCreated, cal)
}

func (h *BusinessHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	calendars, err := h.calendars.ListByBusiness(r.Context(), businessID)
	if err != nil {
		http.Error(w, "failed to list calendars", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, calendars)
}

type createStaffRequest struct {
	BusinessID string `json:"business_id"`
	LocationID string `json:"location_id"`
	Name       string `json:"name"`
}

func (h *BusinessHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	businessID, ok := h.requireAdmin(w, r, strings.TrimSpace(req.BusinessID))
	if !ok {
		return
	}

	member := model.Staff{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		LocationID: strings.TrimSpace(req.LocationID),
		Name:       req.Name,
		IsActive:   true,
	}
	if err := h.staff.Create(r.Context(), member); err != nil {
		http.Error(w, "failed to create staff member", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *BusinessHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	members, err := h.staff.ListByBusiness(r.Context(), businessID)
	if err != nil {
		http.Error(w, "failed to list staff", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type setActiveRequest struct {
	BusinessID string `json:"business_id"`
	EntityID   string `json:"entity_id"`
	IsActive   bool   `json:"is_active"`
}

// SetServiceActive toggles whether a service accepts new bookings.
func (h *BusinessHandler) SetServiceActive(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, func(r *http.Request, id string, active bool) error {
		return h.services.SetActive(r.Context(), id, active)
	})
}

func (h *BusinessHandler) SetCalendarActive(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, func(r *http.Request, id string, active bool) error {
		return h.calendars.SetActive(r.Context(), id, active)
	})
}

func (h *BusinessHandler) setActive(w http.ResponseWriter, r *http.Request, apply func(*http.Request, string, bool) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.EntityID == "" {
		http.Error(w, "entity_id required", http.StatusBadRequest)
		return
	}

	if _, ok := h.requireAdmin(w, r, strings.TrimSpace(req.BusinessID)); !ok {
		return
	}

	if err := apply(r, req.EntityID, req.IsActive); err != nil {
		http.Error(w, "failed to update", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": req.EntityID, "is_active": req.IsActive})
}
