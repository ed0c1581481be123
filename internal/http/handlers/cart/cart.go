// Package cart contains the HTTP handlers for a student's cart. Every
// route is student-only and scoped to the caller's own entries.
package cart

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/http/middleware"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
	"github.com/aanand-mishra/coursemart-api/internal/utils/request"
	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// ─────────────────────────────────────────────────────────────────────────────
// Add handles POST /cart
//
// Request body (JSON):
//
//	{ "courseId": "..." }
//
// Error responses:
//
//	404 Not Found  — unknown course
//	409 Conflict   — the course is already in the cart
//
// ─────────────────────────────────────────────────────────────────────────────
func Add(carts storage.CartStorage, courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())

		var entry types.CartEntry
		if !request.DecodeJSON(w, r, &entry) {
			return
		}
		entry.CourseID = strings.TrimSpace(entry.CourseID)
		if !request.Validate(w, entry) {
			return
		}

		if _, err := courses.GetCourseByID(r.Context(), entry.CourseID); err != nil {
			response.WriteError(w, err)
			return
		}

		entry.ID = uuid.NewString()
		entry.Email = id.Email
		entry.CreatedAt = time.Now().UTC()

		added, err := carts.AddCartEntry(r.Context(), entry)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("cart entry added",
			slog.String("id", added.ID),
			slog.String("course_id", added.CourseID))
		response.WriteJSON(w, http.StatusCreated, added)
	}
}

// List handles GET /cart?email=E. E defaults to the caller and must match
// the caller when given.
func List(carts storage.CartStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		if email := r.URL.Query().Get("email"); email != "" && email != id.Email {
			response.WriteError(w, auth.ErrForbidden)
			return
		}

		entries, err := carts.ListCartEntries(r.Context(), id.Email)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, entries)
	}
}

// Delete handles DELETE /cart/{id}. Removing an entry that does not exist
// or belongs to someone else is not an error: it answers
// { "deletedCount": 0 }.
func Delete(carts storage.CartStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		entryID := r.PathValue("id")

		n, err := carts.DeleteCartEntry(r.Context(), entryID, id.Email)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		if n > 0 {
			slog.Info("cart entry removed", slog.String("id", entryID))
		}
		response.WriteJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
	}
}
