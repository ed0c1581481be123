// Package postgres implements storage.Storage on PostgreSQL with gorm.
// The schema is owned by the goose migrations embedded in this package;
// gorm only maps rows, it never auto-migrates.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
)

// Repository is the PostgreSQL implementation of storage.Storage.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ storage.Storage = (*Repository)(nil)

// Connect opens a gorm pool on dsn and checks it with a ping.
func Connect(dsn string, logger *slog.Logger) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewRepository(db, logger), nil
}

// NewRepository wraps an existing gorm handle.
func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ── users ────────────────────────────────────────────────────────────────────

func (r *Repository) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	row := userModelFromType(user)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("CreateUser: %w", storage.ErrAlreadyExists)
		}
		return types.User{}, r.logError("create_user", err, "email", user.Email)
	}
	return row.toType(), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var row userModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.User{}, fmt.Errorf("GetUserByEmail %q: %w", email, storage.ErrNotFound)
		}
		return types.User{}, r.logError("get_user_by_email", err, "email", email)
	}
	return row.toType(), nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]types.User, error) {
	var rows []userModel
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("list_users", err)
	}
	return toUsers(rows), nil
}

func (r *Repository) ListUsersByRole(ctx context.Context, role types.Role, limit int) ([]types.User, error) {
	q := r.db.WithContext(ctx).Where("role = ?", string(role)).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []userModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, r.logError("list_users_by_role", err, "role", string(role))
	}
	return toUsers(rows), nil
}

func (r *Repository) UpdateUserRole(ctx context.Context, id string, role types.Role) (types.User, error) {
	res := r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Update("role", string(role))
	if res.Error != nil {
		return types.User{}, r.logError("update_user_role", res.Error, "id", id)
	}
	if res.RowsAffected == 0 {
		return types.User{}, fmt.Errorf("UpdateUserRole %q: %w", id, storage.ErrNotFound)
	}

	var row userModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return types.User{}, r.logError("update_user_role_reload", err, "id", id)
	}
	return row.toType(), nil
}

// ── courses ──────────────────────────────────────────────────────────────────

func (r *Repository) CreateCourse(ctx context.Context, c types.Course) (types.Course, error) {
	row := courseModelFromType(c)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.Course{}, r.logError("create_course", err, "instructor", c.InstructorEmail)
	}
	return row.toType(), nil
}

func (r *Repository) GetCourseByID(ctx context.Context, id string) (types.Course, error) {
	var row courseModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Course{}, fmt.Errorf("GetCourseByID %q: %w", id, storage.ErrNotFound)
		}
		return types.Course{}, r.logError("get_course", err, "id", id)
	}
	return row.toType(), nil
}

func (r *Repository) ListCourses(ctx context.Context, filter types.CourseFilter) ([]types.Course, error) {
	q := r.db.WithContext(ctx).Model(&courseModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.InstructorEmail != "" {
		q = q.Where("instructor_email = ?", filter.InstructorEmail)
	}
	if filter.ByPopularity {
		q = q.Order("students DESC, created_at DESC")
	} else {
		q = q.Order("created_at DESC, id DESC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []courseModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, r.logError("list_courses", err)
	}
	return toCourses(rows), nil
}

func (r *Repository) UpdateCourse(ctx context.Context, id string, update types.CourseUpdate) (types.Course, error) {
	fields := courseUpdateFields(update)
	if len(fields) == 0 {
		return r.GetCourseByID(ctx, id)
	}

	res := r.db.WithContext(ctx).Model(&courseModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return types.Course{}, r.logError("update_course", res.Error, "id", id)
	}
	if res.RowsAffected == 0 {
		return types.Course{}, fmt.Errorf("UpdateCourse %q: %w", id, storage.ErrNotFound)
	}
	return r.GetCourseByID(ctx, id)
}

func (r *Repository) UpdateCourseStatus(ctx context.Context, id string, status types.CourseStatus) (types.Course, error) {
	res := r.db.WithContext(ctx).Model(&courseModel{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return types.Course{}, r.logError("update_course_status", res.Error, "id", id)
	}
	if res.RowsAffected == 0 {
		return types.Course{}, fmt.Errorf("UpdateCourseStatus %q: %w", id, storage.ErrNotFound)
	}
	return r.GetCourseByID(ctx, id)
}

// courseUpdateFields lists the columns an instructor update touches.
func courseUpdateFields(update types.CourseUpdate) map[string]any {
	fields := make(map[string]any, 4)
	if update.Title != nil {
		fields["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.Image != nil {
		fields["image"] = *update.Image
	}
	if update.Price != nil {
		fields["price"] = *update.Price
	}
	return fields
}

// ── cart ─────────────────────────────────────────────────────────────────────

func (r *Repository) AddCartEntry(ctx context.Context, entry types.CartEntry) (types.CartEntry, error) {
	row := cartEntryModel{ID: entry.ID, CourseID: entry.CourseID, Email: entry.Email, CreatedAt: entry.CreatedAt.UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return types.CartEntry{}, fmt.Errorf("AddCartEntry: %w", storage.ErrAlreadyExists)
		}
		return types.CartEntry{}, r.logError("add_cart_entry", err, "course_id", entry.CourseID)
	}
	return row.toType(), nil
}

func (r *Repository) ListCartEntries(ctx context.Context, email string) ([]types.CartEntry, error) {
	var rows []cartEntryModel
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("list_cart_entries", err)
	}
	out := make([]types.CartEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toType())
	}
	return out, nil
}

func (r *Repository) DeleteCartEntry(ctx context.Context, id, email string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND email = ?", id, email).Delete(&cartEntryModel{})
	if res.Error != nil {
		return 0, r.logError("delete_cart_entry", res.Error, "id", id)
	}
	return res.RowsAffected, nil
}

// ── payments ─────────────────────────────────────────────────────────────────

// RecordEnrollment takes the seat with a conditional UPDATE inside the
// transaction. Postgres locks the course row for the rest of the
// transaction, so concurrent payments for the same course queue behind
// each other and re-check available_seats > 0.
func (r *Repository) RecordEnrollment(ctx context.Context, p types.PaymentRecord) (types.EnrollmentResult, error) {
	result := types.EnrollmentResult{InsertedID: p.ID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken := tx.Model(&courseModel{}).
			Where("id = ? AND available_seats > 0", p.CourseID).
			Updates(map[string]any{
				"available_seats": gorm.Expr("available_seats - 1"),
				"students":        gorm.Expr("students + 1"),
			})
		if taken.Error != nil {
			return taken.Error
		}
		if taken.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&courseModel{}).Where("id = ?", p.CourseID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("RecordEnrollment course %q: %w", p.CourseID, storage.ErrNotFound)
			}
			return fmt.Errorf("RecordEnrollment course %q: %w", p.CourseID, storage.ErrNoSeatsAvailable)
		}

		row := paymentModel{
			ID:            p.ID,
			Email:         p.Email,
			CourseID:      p.CourseID,
			Amount:        p.Amount,
			TransactionID: p.TransactionID,
			CreatedAt:     p.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		deleted := tx.Where("email = ? AND course_id = ?", p.Email, p.CourseID).Delete(&cartEntryModel{})
		if deleted.Error != nil {
			return deleted.Error
		}
		result.DeletedCount = deleted.RowsAffected

		var course courseModel
		if err := tx.Select("available_seats", "students").Where("id = ?", p.CourseID).First(&course).Error; err != nil {
			return err
		}
		result.AvailableSeats = course.AvailableSeats
		result.Students = course.Students
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNoSeatsAvailable) {
			return types.EnrollmentResult{}, err
		}
		return types.EnrollmentResult{}, r.logError("record_enrollment", err, "course_id", p.CourseID)
	}
	return result, nil
}

func (r *Repository) ListPaymentsByEmail(ctx context.Context, email string, newestFirst bool) ([]types.PaymentRecord, error) {
	order := "created_at ASC, id ASC"
	if newestFirst {
		order = "created_at DESC, id DESC"
	}
	var rows []paymentModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Order(order).Find(&rows).Error; err != nil {
		return nil, r.logError("list_payments", err)
	}
	out := make([]types.PaymentRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toType())
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *Repository) logError(op string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+4)
	fields = append(fields, "op", op, "error", err.Error())
	fields = append(fields, attrs...)
	r.logger.Error("postgres repository operation failed", fields...)
	return fmt.Errorf("postgres %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
