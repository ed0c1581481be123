// Package enrollment coordinates the payment flow: creating a payment
// intent with the processor, then recording the confirmed payment together
// with its cart cleanup and seat bookkeeping.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aanand-mishra/coursemart-api/internal/payment"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
)

// ErrInvalidPrice is returned for a non-positive or non-finite price.
var ErrInvalidPrice = errors.New("price must be a positive amount")

// Service is the Enrollment/Payment service.
type Service struct {
	payments  storage.PaymentStorage
	processor payment.Processor
	currency  string
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Service. A nil logger falls back to slog.Default().
func New(payments storage.PaymentStorage, processor payment.Processor, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		payments:  payments,
		processor: processor,
		currency:  strings.ToLower(currency),
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MinorUnits converts a price in the major currency unit to the minor unit
// the processor expects (19.99 usd → 1999 cents).
func MinorUnits(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, ErrInvalidPrice
	}
	amount := int64(math.Round(price * 100))
	if amount <= 0 {
		return 0, ErrInvalidPrice
	}
	return amount, nil
}

// CreatePaymentIntent asks the processor for an intent covering price.
// Nothing is persisted; the returned client secret lets the client confirm
// the payment out-of-band before calling RecordPayment.
func (s *Service) CreatePaymentIntent(ctx context.Context, price float64) (payment.Intent, error) {
	amount, err := MinorUnits(price)
	if err != nil {
		return payment.Intent{}, err
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, amount, s.currency)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("enrollment: %w", err)
	}

	s.logger.Info("payment intent created",
		slog.String("intent_id", intent.ID),
		slog.Int64("amount", amount),
		slog.String("currency", s.currency),
	)
	return intent, nil
}

// RecordPayment stores a confirmed payment and enrolls the student: the
// payment row, the cart cleanup and the seat move happen in one store
// transaction. A full course yields storage.ErrNoSeatsAvailable and an
// unknown course storage.ErrNotFound; nothing is written in either case.
//
// The returned error is validator.ValidationErrors when record is
// malformed.
func (s *Service) RecordPayment(ctx context.Context, record types.PaymentRecord) (types.EnrollmentResult, error) {
	record.Email = strings.TrimSpace(record.Email)
	record.CourseID = strings.TrimSpace(record.CourseID)
	if err := s.validate.Struct(record); err != nil {
		return types.EnrollmentResult{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("enrollment: payment id: %w", err)
	}
	record.ID = id.String()
	record.CreatedAt = s.now()

	result, err := s.payments.RecordEnrollment(ctx, record)
	if err != nil {
		if errors.Is(err, storage.ErrNoSeatsAvailable) || errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("payment rejected",
				slog.String("course_id", record.CourseID),
				slog.String("email", record.Email),
				slog.String("reason", err.Error()),
			)
		}
		return types.EnrollmentResult{}, fmt.Errorf("enrollment: record payment: %w", err)
	}

	s.logger.Info("payment recorded",
		slog.String("payment_id", result.InsertedID),
		slog.String("course_id", record.CourseID),
		slog.String("email", record.Email),
		slog.Int64("cart_entries_removed", result.DeletedCount),
		slog.Int("available_seats", result.AvailableSeats),
	)
	return result, nil
}

// History returns a student's payments, newest first.
func (s *Service) History(ctx context.Context, email string) ([]types.PaymentRecord, error) {
	return s.payments.ListPaymentsByEmail(ctx, strings.TrimSpace(email), true)
}

// Enrolled returns a student's payments in the order they were made.
func (s *Service) Enrolled(ctx context.Context, email string) ([]types.PaymentRecord, error) {
	return s.payments.ListPaymentsByEmail(ctx, strings.TrimSpace(email), false)
}
