// Package user contains the HTTP handlers for marketplace accounts and
// their roles.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/coursemart-api/internal/http/middleware"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
	"github.com/aanand-mishra/coursemart-api/internal/utils/request"
	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// RoleLookup resolves the stored role of an identity.
type RoleLookup interface {
	ResolveRole(ctx context.Context, email string) (types.Role, error)
}

// alreadyExists is the body returned when registration finds the email
// taken.
type alreadyExists struct {
	Message    string  `json:"message"`
	InsertedID *string `json:"insertedId"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Register handles POST /users
// Called by the client after every sign-in; idempotent by email.
//
// Request body (JSON):
//
//	{ "name": "Alice", "email": "alice@example.com", "photoURL": "..." }
//
// A new user gets the student role unless the body asks for guest.
// Privileged roles are granted by an admin only.
//
// Success responses:
//
//	201 Created — the new user
//	200 OK      — { "message": "user already exists", "insertedId": null }
//
// ─────────────────────────────────────────────────────────────────────────────
func Register(users storage.UserStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u types.User
		if !request.DecodeJSON(w, r, &u) {
			return
		}
		u.Email = strings.TrimSpace(u.Email)
		if !request.Validate(w, u) {
			return
		}

		switch u.Role {
		case types.RoleUnassigned:
			u.Role = types.RoleStudent
		case types.RoleGuest, types.RoleStudent:
		default:
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(fmt.Errorf("role %q cannot be self-assigned", u.Role)))
			return
		}

		_, err := users.GetUserByEmail(r.Context(), u.Email)
		switch {
		case err == nil:
			response.WriteJSON(w, http.StatusOK, alreadyExists{Message: "user already exists"})
			return
		case !errors.Is(err, storage.ErrNotFound):
			response.WriteError(w, err)
			return
		}

		u.ID = uuid.NewString()
		u.CreatedAt = time.Now().UTC()
		created, err := users.CreateUser(r.Context(), u)
		if errors.Is(err, storage.ErrAlreadyExists) {
			// lost a race with a concurrent registration for the same email
			response.WriteJSON(w, http.StatusOK, alreadyExists{Message: "user already exists"})
			return
		}
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("user registered",
			slog.String("id", created.ID),
			slog.String("role", string(created.Role)))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// List handles GET /users (admin only).
func List(users storage.UserStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.ListUsers(r.Context())
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, list)
	}
}

// ListInstructors handles GET /instructors?limit=N (public).
func ListInstructors(users storage.UserStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := request.Limit(w, r)
		if !ok {
			return
		}
		list, err := users.ListUsersByRole(r.Context(), types.RoleInstructor, limit)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, list)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetRole handles GET /users/role/{email} (authenticated).
// Callers may only read their own role; asking about anybody else, or
// about an unknown user, answers { "role": null }.
// ─────────────────────────────────────────────────────────────────────────────
func GetRole(roles RoleLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		email := r.PathValue("email")

		role := types.RoleUnassigned
		if email == id.Email {
			var err error
			role, err = roles.ResolveRole(r.Context(), email)
			if err != nil {
				response.WriteError(w, err)
				return
			}
		}
		response.WriteJSON(w, http.StatusOK, map[string]types.Role{"role": role})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SetRole handles PATCH /users/{id}?role=R (admin only).
//
//	400 Bad Request  — R is not guest, student, instructor or admin
//	404 Not Found    — no user with that id
//
// ─────────────────────────────────────────────────────────────────────────────
func SetRole(users storage.UserStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")
		raw := r.URL.Query().Get("role")

		role, ok := types.ParseRole(raw)
		if !ok {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(fmt.Errorf("invalid role %q", raw)))
			return
		}

		updated, err := users.UpdateUserRole(r.Context(), userID, role)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("user role changed",
			slog.String("id", userID),
			slog.String("role", string(role)))
		response.WriteJSON(w, http.StatusOK, updated)
	}
}
