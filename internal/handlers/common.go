// Package handlers exposes the HTTP surface of the booking service.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bookwellhq/bookwell/internal/auth"
)

type contextKey string

const actorIDKey contextKey = "actor_id"

// RequireAuth verifies the bearer token and stores the caller's user id on
// the request context. Per-request identity beyond the id (role, scope) is
// always re-loaded from the user store by the permission evaluator.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), actorIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID returns the authenticated caller's user id, empty on
// unauthenticated routes.
func ActorID(r *http.Request) string {
	id, _ := r.Context().Value(actorIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
