// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, auth and the enrollment service can all import types
// without depending on each other.
package types

import (
	"encoding/json"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Role is the closed set of access levels a user can hold.
//
// RoleUnassigned is the explicit "no role" variant. It is what the role
// resolver returns for an unknown identity and it encodes to JSON null:
//
//	{ "role": null }
//
// ─────────────────────────────────────────────────────────────────────────────
type Role string

const (
	RoleUnassigned Role = ""
	RoleGuest      Role = "guest"
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole converts a raw string into a Role. The second value is false
// for anything outside the closed set, including the empty string.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleGuest, RoleStudent, RoleInstructor, RoleAdmin:
		return r, true
	default:
		return RoleUnassigned, false
	}
}

// MarshalJSON encodes RoleUnassigned as null.
func (r Role) MarshalJSON() ([]byte, error) {
	if r == RoleUnassigned {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON accepts null or a string.
func (r *Role) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RoleUnassigned
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Role(raw)
	return nil
}

// CourseStatus is the review state of a course.
// Courses start as pending and only an admin can approve them.
type CourseStatus string

const (
	CourseStatusPending  CourseStatus = "pending"
	CourseStatusApproved CourseStatus = "approved"
)

// ParseCourseStatus validates a raw status string.
func ParseCourseStatus(raw string) (CourseStatus, bool) {
	switch s := CourseStatus(raw); s {
	case CourseStatusPending, CourseStatusApproved:
		return s, true
	default:
		return "", false
	}
}

// User represents an account in the marketplace.
//
// Struct tags serve two purposes:
//
//  1. json:"..."     — the wire name used by the web client.
//  2. validate:"..." — rules checked by go-playground/validator.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email" validate:"required,email"`
	PhotoURL  string    `json:"photoURL,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Course is a sellable course with a fixed number of seats.
//
// AvailableSeats and Students are only ever changed by the enrollment
// transaction; instructors cannot edit them directly.
type Course struct {
	ID              string       `json:"id"`
	Title           string       `json:"title" validate:"required"`
	Description     string       `json:"description"`
	Image           string       `json:"image,omitempty"`
	Price           float64      `json:"price" validate:"gte=0"`
	TotalSeats      int          `json:"totalSeats" validate:"required,gt=0"`
	AvailableSeats  int          `json:"availableSeats"`
	Students        int          `json:"students"`
	InstructorName  string       `json:"instructorName"`
	InstructorEmail string       `json:"instructorEmail"`
	Status          CourseStatus `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// CourseUpdate carries the instructor-editable fields of a course.
// A nil pointer means "leave unchanged".
type CourseUpdate struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1"`
	Description *string  `json:"description,omitempty"`
	Image       *string  `json:"image,omitempty"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
}

// CourseFilter narrows a course listing.
//
//	Status          — "" means any status
//	InstructorEmail — "" means any instructor
//	ByPopularity    — sort by Students descending instead of newest first
//	Limit           — 0 means no cap
type CourseFilter struct {
	Status          CourseStatus
	InstructorEmail string
	ByPopularity    bool
	Limit           int
}

// CartEntry is a student's intent to enroll in a course, before payment.
type CartEntry struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId" validate:"required"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentRecord is written once per successful payment and never changed.
// ID is a UUIDv7, so ordering by ID is ordering by creation time.
type PaymentRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email" validate:"required,email"`
	CourseID      string    `json:"courseId" validate:"required"`
	Amount        float64   `json:"amount" validate:"gt=0"`
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EnrollmentResult describes what a recorded payment changed.
type EnrollmentResult struct {
	InsertedID     string `json:"insertedId"`
	DeletedCount   int64  `json:"deletedCount"`
	AvailableSeats int    `json:"availableSeats"`
	Students       int    `json:"students"`
}
