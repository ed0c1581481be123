// Package course contains the HTTP handlers for the course catalog.
//
// Handlers follow the factory pattern: each exported function receives its
// dependencies once, at route registration, and returns the
// http.HandlerFunc the router calls on every request:
//
//	mux.HandleFunc("GET /courses", course.List(store))
//
// Ownership and role checks for instructors rely on the identity stored in
// the request context by middleware.Authenticator.
package course

import (
	"fmt"
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
// List handles GET /courses?limit=N
// Public catalog: approved courses only, most enrolled first.
//
// Success response (200 OK): a JSON array, [] when empty.
//
// Error responses:
//
//	400 Bad Request  — limit is not a non-negative integer
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func List(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := request.Limit(w, r)
		if !ok {
			return
		}

		list, err := courses.ListCourses(r.Context(), types.CourseFilter{
			Status:       types.CourseStatusApproved,
			ByPopularity: true,
			Limit:        limit,
		})
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, list)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create handles POST /courses (instructor only).
//
// Request body (JSON):
//
//	{ "title": "Go in Practice", "price": 49.5, "totalSeats": 30, "instructorName": "Ira" }
//
// The server owns the review status and the counters: status is always
// pending, availableSeats starts at totalSeats and students at 0. The
// instructor email comes from the token, never from the body.
//
// Success response (201 Created): the stored course.
// ─────────────────────────────────────────────────────────────────────────────
func Create(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())

		var c types.Course
		if !request.DecodeJSON(w, r, &c) {
			return
		}
		c.Title = strings.TrimSpace(c.Title)
		if !request.Validate(w, c) {
			return
		}

		c.ID = uuid.NewString()
		c.Status = types.CourseStatusPending
		c.AvailableSeats = c.TotalSeats
		c.Students = 0
		c.InstructorEmail = id.Email
		c.CreatedAt = time.Now().UTC()

		created, err := courses.CreateCourse(r.Context(), c)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("course created",
			slog.String("id", created.ID),
			slog.String("instructor", created.InstructorEmail))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// ListPending handles GET /pending-courses (admin only), newest first.
func ListPending(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := courses.ListCourses(r.Context(), types.CourseFilter{Status: types.CourseStatusPending})
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, list)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SetStatus handles PATCH /pending-courses/{id}?status=S (admin only).
//
//	400 Bad Request  — S is not pending or approved
//	404 Not Found    — no course with that id
//
// ─────────────────────────────────────────────────────────────────────────────
func SetStatus(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := r.PathValue("id")
		raw := r.URL.Query().Get("status")

		status, ok := types.ParseCourseStatus(raw)
		if !ok {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(fmt.Errorf("invalid status %q: must be pending or approved", raw)))
			return
		}

		updated, err := courses.UpdateCourseStatus(r.Context(), courseID, status)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("course status changed",
			slog.String("id", courseID),
			slog.String("status", string(status)))
		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ListMine handles GET /my-courses?email=E (instructor only).
// E defaults to the caller and must match the caller when given.
// ─────────────────────────────────────────────────────────────────────────────
func ListMine(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		email := r.URL.Query().Get("email")
		if email != "" && email != id.Email {
			response.WriteError(w, auth.ErrForbidden)
			return
		}

		list, err := courses.ListCourses(r.Context(), types.CourseFilter{InstructorEmail: id.Email})
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, list)
	}
}

// GetMine handles GET /my-courses/{id} (instructor only). Another
// instructor's course is a 403.
func GetMine(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCourse(w, r, courses)
		if !ok {
			return
		}
		response.WriteJSON(w, http.StatusOK, c)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateMine handles PATCH /my-courses/{id} (instructor only).
//
// Request body (JSON), every field optional:
//
//	{ "title": "...", "description": "...", "image": "...", "price": 59 }
//
// Seats, counters, status and ownership cannot be changed here.
// ─────────────────────────────────────────────────────────────────────────────
func UpdateMine(courses storage.CourseStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ownedCourse(w, r, courses); !ok {
			return
		}

		var update types.CourseUpdate
		if !request.DecodeJSON(w, r, &update) {
			return
		}
		if !request.Validate(w, update) {
			return
		}

		updated, err := courses.UpdateCourse(r.Context(), r.PathValue("id"), update)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("course updated", slog.String("id", updated.ID))
		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// ownedCourse loads the {id} course and checks it belongs to the caller.
func ownedCourse(w http.ResponseWriter, r *http.Request, courses storage.CourseStorage) (types.Course, bool) {
	id, _ := middleware.IdentityFromContext(r.Context())

	c, err := courses.GetCourseByID(r.Context(), r.PathValue("id"))
	if err != nil {
		response.WriteError(w, err)
		return types.Course{}, false
	}
	if c.InstructorEmail != id.Email {
		response.WriteError(w, auth.ErrForbidden)
		return types.Course{}, false
	}
	return c, true
}
