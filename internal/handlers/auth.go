package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookwellhq/bookwell/internal/auth"
	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/storage"
)

type AuthHandler struct {
	users      *storage.UserStore
	businesses *storage.BusinessStore
	logger     *slog.Logger
	jwtSecret  string
	tokenTTL   time.Duration
}

func NewAuthHandler(users *storage.UserStore, businesses *storage.BusinessStore, logger *slog.Logger, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &AuthHandler{
		users:      users,
		businesses: businesses,
		logger:     logger,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
	}
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	BusinessName string `json:"business_name"`
	Timezone     string `json:"timezone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	BusinessID  string `json:"business_id"`
}

// Register creates a business and its owner account in one transaction.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	if req.Email == "" || req.Password == "" || req.BusinessName == "" {
		http.Error(w, "email, password and business_name required", http.StatusBadRequest)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	business := businessRecord(req.BusinessName, req.Timezone)
	owner := storage.User{
		ID:           uuid.NewString(),
		BusinessID:   business.ID,
		Role:         rbac.RoleBusinessOwner,
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		IsActive:     true,
	}

	ctx := r.Context()
	tx, err := h.businesses.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.businesses.CreateTx(ctx, tx, business); err != nil {
		http.Error(w, "failed to create business", http.StatusInternalServerError)
		return
	}
	if err := h.users.CreateTx(ctx, tx, owner); err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("business registered", "business_id", business.ID, "owner_id", owner.ID)
	h.issueToken(w, http.StatusCreated, owner)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	user, ok, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if !ok || !user.IsActive || auth.VerifyPassword(user.PasswordHash, req.Password) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.issueToken(w, http.StatusOK, user)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok, err := h.users.GetByID(r.Context(), ActorID(r))
	if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, userItemFrom(user))
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, status int, user storage.User) {
	now := time.Now().UTC()
	token, err := auth.SignHS256(auth.Claims{
		Sub:        user.ID,
		BusinessID: user.BusinessID,
		Role:       string(user.Role),
		Iat:        now.Unix(),
		Exp:        now.Add(h.tokenTTL).Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      user.ID,
		BusinessID:  user.BusinessID,
	})
}

func businessRecord(name, timezone string) model.Business {
	return model.Business{
		ID:       uuid.NewString(),
		Name:     name,
		Timezone: timezone,
		IsActive: true,
	}
}
