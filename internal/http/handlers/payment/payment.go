// Package payment contains the HTTP handlers for the checkout flow:
// payment intent, payment recording and payment history.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/coursemart-api/internal/enrollment"
	processor "github.com/aanand-mishra/coursemart-api/internal/payment"
	"github.com/aanand-mishra/coursemart-api/internal/types"
	"github.com/aanand-mishra/coursemart-api/internal/utils/request"
	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// Enrollment is the slice of enrollment.Service the handlers use.
type Enrollment interface {
	CreatePaymentIntent(ctx context.Context, price float64) (processor.Intent, error)
	RecordPayment(ctx context.Context, record types.PaymentRecord) (types.EnrollmentResult, error)
	History(ctx context.Context, email string) ([]types.PaymentRecord, error)
	Enrolled(ctx context.Context, email string) ([]types.PaymentRecord, error)
}

type intentRequest struct {
	Price float64 `json:"price"`
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateIntent handles POST /create-payment-intent
//
// Request body (JSON):
//
//	{ "price": 49.5 }
//
// Success response (200 OK):
//
//	{ "id": "pi_...", "clientSecret": "pi_..._secret_...", "amount": 4950, "currency": "usd" }
//
// Error responses:
//
//	400 Bad Request  — price missing, zero, negative or not a number
//	500 Internal     — the processor refused or was unreachable
//
// ─────────────────────────────────────────────────────────────────────────────
func CreateIntent(svc Enrollment) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body intentRequest
		if !request.DecodeJSON(w, r, &body) {
			return
		}

		intent, err := svc.CreatePaymentIntent(r.Context(), body.Price)
		if errors.Is(err, enrollment.ErrInvalidPrice) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, intent)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Record handles POST /payments
// Finalizes a confirmed payment and enrolls the student.
//
// Request body (JSON):
//
//	{ "email": "alice@example.com", "courseId": "...", "amount": 49.5, "transactionId": "pi_..." }
//
// Success response (201 Created):
//
//	{ "insertedId": "...", "deletedCount": 1, "availableSeats": 4, "students": 11 }
//
// Error responses:
//
//	400 Bad Request  — malformed body or failed validation
//	404 Not Found    — unknown course
//	409 Conflict     — no seats left; nothing was recorded
//
// ─────────────────────────────────────────────────────────────────────────────
func Record(svc Enrollment) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var record types.PaymentRecord
		if !request.DecodeJSON(w, r, &record) {
			return
		}

		result, err := svc.RecordPayment(r.Context(), record)
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
			return
		case err != nil:
			response.WriteError(w, err)
			return
		}

		slog.Info("enrollment completed",
			slog.String("payment_id", result.InsertedID),
			slog.String("course_id", record.CourseID))
		response.WriteJSON(w, http.StatusCreated, result)
	}
}

// History handles GET /payments/history?email=E, newest first.
func History(svc Enrollment) http.HandlerFunc {
	return listByEmail(svc.History)
}

// Enrolled handles GET /payments/enrolledCourses?email=E, oldest first.
func Enrolled(svc Enrollment) http.HandlerFunc {
	return listByEmail(svc.Enrolled)
}

func listByEmail(list func(context.Context, string) ([]types.PaymentRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.Message("query parameter email is required"))
			return
		}

		payments, err := list(r.Context(), email)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, payments)
	}
}
