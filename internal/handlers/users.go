package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/storage"
)

type UsersHandler struct {
	users     *storage.UserStore
	evaluator *rbac.Evaluator
	logger    *slog.Logger
}

func NewUsersHandler(users *storage.UserStore, evaluator *rbac.Evaluator, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{users: users, evaluator: evaluator, logger: logger}
}

type userItem struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
}

func userItemFrom(u storage.User) userItem {
	return userItem{
		ID:         u.ID,
		BusinessID: u.BusinessID,
		LocationID: u.LocationID,
		Role:       string(u.Role),
		Email:      u.Email,
		Name:       u.Name,
		Phone:      u.Phone,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// writeDecision maps a denial to 404 for missing identities and 403 for
// everything else, echoing the decision reason as the error code.
func writeDecision(w http.ResponseWriter, d rbac.Decision) {
	status := http.StatusForbidden
	if d.Reason == rbac.ReasonNotFound {
		status = http.StatusNotFound
	}
	msg := "operation not permitted"
	if len(d.Fields) > 0 {
		msg = "fields not permitted: " + strings.Join(d.Fields, ", ")
	}
	writeError(w, status, string(d.Reason), msg)
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actorID := ActorID(r)
	filter, decision, err := h.evaluator.CanListUsers(r.Context(), actorID)
	if err != nil {
		http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
		return
	}
	if !decision.Allowed {
		writeDecision(w, decision)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	if filter.SelfOnly {
		user, ok, err := h.users.GetByID(r.Context(), actorID)
		if err != nil || !ok {
			http.Error(w, "failed to load user", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, []userItem{userItemFrom(user)})
		return
	}

	users, err := h.users.Search(r.Context(), filter, limit)
	if err != nil {
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	items := make([]userItem, 0, len(users))
	for _, u := range users {
		items = append(items, userItemFrom(u))
	}
	writeJSON(w, http.StatusOK, items)
}

type updateUserRequest struct {
	UserID   string  `json:"user_id"`
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (req *updateUserRequest) fields() []string {
	var fields []string
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.Phone != nil {
		fields = append(fields, "phone")
	}
	if req.Role != nil {
		fields = append(fields, "role")
	}
	if req.IsActive != nil {
		fields = append(fields, "is_active")
	}
	return fields
}

// Update applies a profile or administrative change to a user. Self-updates
// are restricted to the allow-listed profile fields; cross-user updates
// require the caller to outrank the target within scope.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	fields := req.fields()
	if len(fields) == 0 {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	actorID := ActorID(r)

	if actorID == req.UserID {
		if decision := rbac.CheckSelfUpdate(fields); !decision.Allowed {
			writeDecision(w, decision)
			return
		}
	} else {
		decision, err := h.evaluator.CanManageUser(ctx, actorID, req.UserID)
		if err != nil {
			http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			writeDecision(w, decision)
			return
		}
		if req.Role != nil {
			role, err := rbac.ParseRole(*req.Role)
			if err != nil {
				http.Error(w, "unknown role", http.StatusBadRequest)
				return
			}
			decision, err := h.evaluator.CanActOnRole(ctx, actorID, role)
			if err != nil {
				http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
				return
			}
			if !decision.Allowed {
				writeDecision(w, decision)
				return
			}
		}
	}

	name, email, phone := "", "", ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
	}
	if name != "" || email != "" || phone != "" {
		if err := h.users.UpdateProfile(ctx, req.UserID, name, email, phone); err != nil {
			http.Error(w, "failed to update user", http.StatusInternalServerError)
			return
		}
	}
	if req.Role != nil {
		role, _ := rbac.ParseRole(*req.Role)
		if err := h.users.SetRole(ctx, req.UserID, role); err != nil {
			http.Error(w, "failed to update role", http.StatusInternalServerError)
			return
		}
	}
	if req.IsActive != nil {
		if err := h.users.SetActive(ctx, req.UserID, *req.IsActive); err != nil {
			http.Error(w, "failed to update active state", http.StatusInternalServerError)
			return
		}
	}

	user, ok, err := h.users.GetByID(ctx, req.UserID)
	if err != nil || !ok {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, userItemFrom(user))
}

type deleteUserRequest struct {
	UserID string `json:"user_id"`
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	actorID := ActorID(r)
	decision, err := h.evaluator.CanDeleteUser(ctx, actorID, req.UserID)
	if err != nil {
		http.Error(w, "failed to evaluate permissions", http.StatusInternalServerError)
		return
	}
	if !decision.Allowed {
		writeDecision(w, decision)
		return
	}

	deleted, err := h.users.Delete(ctx, req.UserID)
	if err != nil {
		http.Error(w, "failed to delete user", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	h.logger.Info("user deleted", "actor_id", actorID, "user_id", req.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "user_id": req.UserID})
}
