// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Success responses may return any JSON shape. Error responses always look
// like:
//
//	{ "error": true, "message": "forbidden access" }
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
)

// Response is the standard envelope returned for error cases.
type Response struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Message builds an error envelope from a plain message.
func Message(msg string) Response {
	return Response{Error: true, Message: msg}
}

// GeneralError wraps any Go error into the standard Response shape.
// Use it for client errors whose text is safe to show (decode errors etc.).
func GeneralError(err error) Response {
	return Message(err.Error())
}

// ValidationError converts validator.ValidationErrors into one
// human-readable Response.
//
//	{ "error": true, "message": "field Title is required, field Email must be a valid email address" }
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "gt", "gte", "min":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Message(strings.Join(errMessages, ", "))
}

// StatusFor maps the application's sentinel errors to HTTP status codes.
//
//	auth.ErrUnauthenticated      → 401
//	auth.ErrForbidden            → 403
//	storage.ErrNotFound          → 404
//	storage.ErrAlreadyExists     → 409
//	storage.ErrNoSeatsAvailable  → 409
//	anything else                → 500
func StatusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, storage.ErrNoSeatsAvailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status chosen by StatusFor. Internal
// errors are logged and replaced by a generic message so database or
// processor details never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	msg := publicMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
		msg = "internal server error"
	}
	WriteJSON(w, status, Message(msg))
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthorized access"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden access"
	case errors.Is(err, storage.ErrNotFound):
		return "resource not found"
	case errors.Is(err, storage.ErrAlreadyExists):
		return "resource already exists"
	case errors.Is(err, storage.ErrNoSeatsAvailable):
		return "no seats available"
	default:
		return err.Error()
	}
}
