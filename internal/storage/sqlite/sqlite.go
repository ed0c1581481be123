// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// SQLite stores everything in a single file on disk, which makes it the
// default backend for local development and for the integration tests.
// Importing go-sqlite3 registers the "sqlite3" driver with database/sql;
// we also use its Error type to recognise UNIQUE constraint violations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aanand-mishra/coursemart-api/internal/config"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB, a connection pool managed by database/sql.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// schema is idempotent — safe to run on every startup.
//
// The CHECK on courses keeps 0 <= available_seats <= total_seats at the
// database level, and the UNIQUE pair on cart_entries stops a student
// from adding the same course twice.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL UNIQUE,
	photo_url  TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	image            TEXT NOT NULL DEFAULT '',
	price            REAL NOT NULL DEFAULT 0,
	total_seats      INTEGER NOT NULL,
	available_seats  INTEGER NOT NULL,
	students         INTEGER NOT NULL DEFAULT 0,
	instructor_name  TEXT NOT NULL DEFAULT '',
	instructor_email TEXT NOT NULL,
	status           TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	CHECK (available_seats >= 0 AND available_seats <= total_seats)
);

CREATE TABLE IF NOT EXISTS cart_entries (
	id         TEXT PRIMARY KEY,
	course_id  TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (email, course_id)
);

CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL,
	course_id      TEXT NOT NULL,
	amount         REAL NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);
`

const (
	userColumns   = "id, name, email, photo_url, role, created_at"
	courseColumns = "id, title, description, image, price, total_seats, available_seats, students, instructor_name, instructor_email, status, created_at"
	cartColumns   = "id, course_id, email, created_at"
	paymentColumn = "id, email, course_id, amount, transaction_id, created_at"
)

// New opens the SQLite database at cfg.StoragePath, creates the tables if
// they do not exist yet, and returns a ready-to-use *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	db, err := sql.Open("sqlite3", cfg.StoragePath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// SQLite allows one writer at a time. A single connection turns that
	// into plain queueing inside database/sql instead of SQLITE_BUSY
	// errors, and makes the enrollment transaction strictly serial.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create tables: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Ping checks the database file is still usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

// CreateUser inserts a new row into the users table.
// The UNIQUE index on email turns a second registration into
// storage.ErrAlreadyExists.
func (s *SQLite) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return types.User{}, fmt.Errorf("CreateUser: prepare: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		user.ID, user.Name, user.Email, user.PhotoURL, string(user.Role), user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("CreateUser: %w", storage.ErrAlreadyExists)
		}
		return types.User{}, fmt.Errorf("CreateUser: exec: %w", err)
	}

	return user, nil
}

// GetUserByEmail fetches exactly one user matched by email.
func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("GetUserByEmail %q: %w", email, storage.ErrNotFound)
		}
		return types.User{}, fmt.Errorf("GetUserByEmail: scan: %w", err)
	}
	return user, nil
}

// ListUsers returns all users, oldest first.
func (s *SQLite) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("ListUsers: query: %w", err)
	}
	return collectUsers(rows)
}

// ListUsersByRole returns users with the given role; limit <= 0 means all.
func (s *SQLite) ListUsersByRole(ctx context.Context, role types.Role, limit int) ([]types.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE role = ? ORDER BY created_at ASC, id ASC"
	args := []any{string(role)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListUsersByRole: query: %w", err)
	}
	return collectUsers(rows)
}

// UpdateUserRole sets a user's role and returns the stored record.
func (s *SQLite) UpdateUserRole(ctx context.Context, id string, role types.Role) (types.User, error) {
	res, err := s.Db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", string(role), id)
	if err != nil {
		return types.User{}, fmt.Errorf("UpdateUserRole: exec: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.User{}, fmt.Errorf("UpdateUserRole: rows affected: %w", err)
	} else if n == 0 {
		return types.User{}, fmt.Errorf("UpdateUserRole %q: %w", id, storage.ErrNotFound)
	}

	row := s.Db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		return types.User{}, fmt.Errorf("UpdateUserRole: scan: %w", err)
	}
	return user, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Courses
// ─────────────────────────────────────────────────────────────────────────────

// CreateCourse inserts a course exactly as given; the caller decides the
// initial status and seat counters.
func (s *SQLite) CreateCourse(ctx context.Context, c types.Course) (types.Course, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO courses ("+courseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return types.Course{}, fmt.Errorf("CreateCourse: prepare: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		c.ID, c.Title, c.Description, c.Image, c.Price,
		c.TotalSeats, c.AvailableSeats, c.Students,
		c.InstructorName, c.InstructorEmail, string(c.Status), c.CreatedAt.UTC(),
	)
	if err != nil {
		return types.Course{}, fmt.Errorf("CreateCourse: exec: %w", err)
	}
	return c, nil
}

// GetCourseByID fetches one course by primary key.
func (s *SQLite) GetCourseByID(ctx context.Context, id string) (types.Course, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+courseColumns+" FROM courses WHERE id = ? LIMIT 1", id)

	course, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, fmt.Errorf("GetCourseByID %q: %w", id, storage.ErrNotFound)
		}
		return types.Course{}, fmt.Errorf("GetCourseByID: scan: %w", err)
	}
	return course, nil
}

// ListCourses builds the WHERE / ORDER BY / LIMIT clauses from filter.
// Placeholders are still used for every value.
func (s *SQLite) ListCourses(ctx context.Context, filter types.CourseFilter) ([]types.Course, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.InstructorEmail != "" {
		where = append(where, "instructor_email = ?")
		args = append(args, filter.InstructorEmail)
	}

	query := "SELECT " + courseColumns + " FROM courses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.ByPopularity {
		query += " ORDER BY students DESC, created_at DESC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListCourses: query: %w", err)
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCourses: scan row: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCourses: rows iteration: %w", err)
	}
	return courses, nil
}

// UpdateCourse applies the non-nil fields of update.
func (s *SQLite) UpdateCourse(ctx context.Context, id string, update types.CourseUpdate) (types.Course, error) {
	var (
		set  []string
		args []any
	)
	if update.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Image != nil {
		set = append(set, "image = ?")
		args = append(args, *update.Image)
	}
	if update.Price != nil {
		set = append(set, "price = ?")
		args = append(args, *update.Price)
	}
	if len(set) == 0 {
		return s.GetCourseByID(ctx, id)
	}

	args = append(args, id)
	res, err := s.Db.ExecContext(ctx,
		"UPDATE courses SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return types.Course{}, fmt.Errorf("UpdateCourse: exec: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.Course{}, fmt.Errorf("UpdateCourse: rows affected: %w", err)
	} else if n == 0 {
		return types.Course{}, fmt.Errorf("UpdateCourse %q: %w", id, storage.ErrNotFound)
	}

	return s.GetCourseByID(ctx, id)
}

// UpdateCourseStatus moves a course between pending and approved.
func (s *SQLite) UpdateCourseStatus(ctx context.Context, id string, status types.CourseStatus) (types.Course, error) {
	res, err := s.Db.ExecContext(ctx, "UPDATE courses SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return types.Course{}, fmt.Errorf("UpdateCourseStatus: exec: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.Course{}, fmt.Errorf("UpdateCourseStatus: rows affected: %w", err)
	} else if n == 0 {
		return types.Course{}, fmt.Errorf("UpdateCourseStatus %q: %w", id, storage.ErrNotFound)
	}
	return s.GetCourseByID(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cart
// ─────────────────────────────────────────────────────────────────────────────

// AddCartEntry inserts a cart entry; a duplicate (email, course) pair is
// reported as storage.ErrAlreadyExists.
func (s *SQLite) AddCartEntry(ctx context.Context, entry types.CartEntry) (types.CartEntry, error) {
	_, err := s.Db.ExecContext(ctx,
		"INSERT INTO cart_entries ("+cartColumns+") VALUES (?, ?, ?, ?)",
		entry.ID, entry.CourseID, entry.Email, entry.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return types.CartEntry{}, fmt.Errorf("AddCartEntry: %w", storage.ErrAlreadyExists)
		}
		return types.CartEntry{}, fmt.Errorf("AddCartEntry: exec: %w", err)
	}
	return entry, nil
}

// ListCartEntries returns one student's cart, newest first.
func (s *SQLite) ListCartEntries(ctx context.Context, email string) ([]types.CartEntry, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT "+cartColumns+" FROM cart_entries WHERE email = ? ORDER BY created_at DESC, id DESC", email)
	if err != nil {
		return nil, fmt.Errorf("ListCartEntries: query: %w", err)
	}
	defer rows.Close()

	entries := make([]types.CartEntry, 0)
	for rows.Next() {
		var e types.CartEntry
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Email, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListCartEntries: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCartEntries: rows iteration: %w", err)
	}
	return entries, nil
}

// DeleteCartEntry removes an entry owned by email.
func (s *SQLite) DeleteCartEntry(ctx context.Context, id, email string) (int64, error) {
	res, err := s.Db.ExecContext(ctx, "DELETE FROM cart_entries WHERE id = ? AND email = ?", id, email)
	if err != nil {
		return 0, fmt.Errorf("DeleteCartEntry: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteCartEntry: rows affected: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Payments
// ─────────────────────────────────────────────────────────────────────────────

// RecordEnrollment runs the whole enrollment inside one transaction:
//
//  1. take a seat:   UPDATE ... WHERE id = ? AND available_seats > 0
//  2. insert the payment row
//  3. delete the (email, course) cart entry, if any
//  4. read back the new counters
//
// The conditional UPDATE is the guard against overselling: when it touches
// no row the course is either unknown or full, and the deferred Rollback
// discards everything.
func (s *SQLite) RecordEnrollment(ctx context.Context, p types.PaymentRecord) (types.EnrollmentResult, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: begin: %w", err)
	}
	// Rollback after a successful Commit is a no-op returning ErrTxDone.
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE courses
		SET available_seats = available_seats - 1, students = students + 1
		WHERE id = ? AND available_seats > 0`, p.CourseID)
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: take seat: %w", err)
	}
	taken, err := res.RowsAffected()
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: rows affected: %w", err)
	}
	if taken == 0 {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM courses WHERE id = ?", p.CourseID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment course %q: %w", p.CourseID, storage.ErrNotFound)
		case err != nil:
			return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: lookup course: %w", err)
		default:
			return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment course %q: %w", p.CourseID, storage.ErrNoSeatsAvailable)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumn+") VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Email, p.CourseID, p.Amount, p.TransactionID, p.CreatedAt.UTC())
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: insert payment: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		"DELETE FROM cart_entries WHERE email = ? AND course_id = ?", p.Email, p.CourseID)
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: delete cart entry: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: rows affected: %w", err)
	}

	result := types.EnrollmentResult{InsertedID: p.ID, DeletedCount: deleted}
	err = tx.QueryRowContext(ctx,
		"SELECT available_seats, students FROM courses WHERE id = ?", p.CourseID,
	).Scan(&result.AvailableSeats, &result.Students)
	if err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: read counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.EnrollmentResult{}, fmt.Errorf("RecordEnrollment: commit: %w", err)
	}
	return result, nil
}

// ListPaymentsByEmail returns one student's payments. Payment ids are
// UUIDv7, so they break ties between rows written in the same instant.
func (s *SQLite) ListPaymentsByEmail(ctx context.Context, email string, newestFirst bool) ([]types.PaymentRecord, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.Db.QueryContext(ctx,
		"SELECT "+paymentColumn+" FROM payments WHERE email = ? ORDER BY created_at "+order+", id "+order, email)
	if err != nil {
		return nil, fmt.Errorf("ListPaymentsByEmail: query: %w", err)
	}
	defer rows.Close()

	payments := make([]types.PaymentRecord, 0)
	for rows.Next() {
		var p types.PaymentRecord
		if err := rows.Scan(&p.ID, &p.Email, &p.CourseID, &p.Amount, &p.TransactionID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListPaymentsByEmail: scan row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPaymentsByEmail: rows iteration: %w", err)
	}
	return payments, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		u    types.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhotoURL, &role, &u.CreatedAt); err != nil {
		return types.User{}, err
	}
	u.Role = types.Role(role)
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]types.User, error) {
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users rows iteration: %w", err)
	}
	return users, nil
}

func scanCourse(row rowScanner) (types.Course, error) {
	var (
		c      types.Course
		status string
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Image, &c.Price,
		&c.TotalSeats, &c.AvailableSeats, &c.Students,
		&c.InstructorName, &c.InstructorEmail, &status, &c.CreatedAt,
	)
	if err != nil {
		return types.Course{}, err
	}
	c.Status = types.CourseStatus(status)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
