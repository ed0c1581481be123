// Package storage defines the Storage interface — the contract any
// database backend must satisfy to work with this application.
//
// Handlers, the role resolver and the enrollment service depend only on
// these interfaces. Concrete backends live in sub-packages:
//
//   - storage/sqlite   — single-file database, default for local runs and tests
//   - storage/postgres — gorm on PostgreSQL with goose migrations
//
// main.go picks one and passes it down explicitly; there is no package-level
// connection anywhere.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/coursemart-api/internal/types"
)

// Sentinel errors shared by every backend. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("storage: not found")
	ErrAlreadyExists    = errors.New("storage: already exists")
	ErrNoSeatsAvailable = errors.New("storage: no seats available")
)

// UserStorage persists marketplace accounts.
type UserStorage interface {
	// CreateUser inserts a user. Returns ErrAlreadyExists when the email
	// is taken.
	CreateUser(ctx context.Context, user types.User) (types.User, error)

	// GetUserByEmail returns ErrNotFound when no user has that email.
	GetUserByEmail(ctx context.Context, email string) (types.User, error)

	// ListUsers returns every user, oldest first.
	ListUsers(ctx context.Context) ([]types.User, error)

	// ListUsersByRole returns users holding role. limit <= 0 means no cap.
	ListUsersByRole(ctx context.Context, role types.Role, limit int) ([]types.User, error)

	// UpdateUserRole sets the role of the user with the given id.
	UpdateUserRole(ctx context.Context, id string, role types.Role) (types.User, error)
}

// CourseStorage persists the course catalog.
type CourseStorage interface {
	CreateCourse(ctx context.Context, course types.Course) (types.Course, error)
	GetCourseByID(ctx context.Context, id string) (types.Course, error)
	ListCourses(ctx context.Context, filter types.CourseFilter) ([]types.Course, error)
	UpdateCourse(ctx context.Context, id string, update types.CourseUpdate) (types.Course, error)
	UpdateCourseStatus(ctx context.Context, id string, status types.CourseStatus) (types.Course, error)
}

// CartStorage persists per-student cart entries.
type CartStorage interface {
	// AddCartEntry returns ErrAlreadyExists for a duplicate (email, course).
	AddCartEntry(ctx context.Context, entry types.CartEntry) (types.CartEntry, error)
	ListCartEntries(ctx context.Context, email string) ([]types.CartEntry, error)

	// DeleteCartEntry removes the entry only if it belongs to email and
	// reports how many rows went away (0 or 1).
	DeleteCartEntry(ctx context.Context, id, email string) (int64, error)
}

// PaymentStorage persists payments and the enrollment side effects.
type PaymentStorage interface {
	// RecordEnrollment inserts the payment, removes the matching cart
	// entry and moves one seat from available to taken, all in one
	// transaction. Returns ErrNotFound for an unknown course and
	// ErrNoSeatsAvailable when the course is full; nothing is written in
	// either case.
	RecordEnrollment(ctx context.Context, payment types.PaymentRecord) (types.EnrollmentResult, error)

	// ListPaymentsByEmail returns the payments of one student, newest
	// first when newestFirst is set and oldest first otherwise.
	ListPaymentsByEmail(ctx context.Context, email string, newestFirst bool) ([]types.PaymentRecord, error)
}

// Storage is the full database contract.
type Storage interface {
	UserStorage
	CourseStorage
	CartStorage
	PaymentStorage

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
