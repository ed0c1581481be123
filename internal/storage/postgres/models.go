package postgres

import (
	"time"

	"github.com/aanand-mishra/coursemart-api/internal/types"
)

type userModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	Email     string    `gorm:"column:email"`
	PhotoURL  string    `gorm:"column:photo_url"`
	Role      string    `gorm:"column:role"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (userModel) TableName() string {
	return "users"
}

func userModelFromType(u types.User) userModel {
	return userModel{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		PhotoURL:  u.PhotoURL,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func (m userModel) toType() types.User {
	return types.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		PhotoURL:  m.PhotoURL,
		Role:      types.Role(m.Role),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type courseModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Title           string    `gorm:"column:title"`
	Description     string    `gorm:"column:description"`
	Image           string    `gorm:"column:image"`
	Price           float64   `gorm:"column:price"`
	TotalSeats      int       `gorm:"column:total_seats"`
	AvailableSeats  int       `gorm:"column:available_seats"`
	Students        int       `gorm:"column:students"`
	InstructorName  string    `gorm:"column:instructor_name"`
	InstructorEmail string    `gorm:"column:instructor_email"`
	Status          string    `gorm:"column:status"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (courseModel) TableName() string {
	return "courses"
}

func courseModelFromType(c types.Course) courseModel {
	return courseModel{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		Image:           c.Image,
		Price:           c.Price,
		TotalSeats:      c.TotalSeats,
		AvailableSeats:  c.AvailableSeats,
		Students:        c.Students,
		InstructorName:  c.InstructorName,
		InstructorEmail: c.InstructorEmail,
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt.UTC(),
	}
}

func (m courseModel) toType() types.Course {
	return types.Course{
		ID:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		Image:           m.Image,
		Price:           m.Price,
		TotalSeats:      m.TotalSeats,
		AvailableSeats:  m.AvailableSeats,
		Students:        m.Students,
		InstructorName:  m.InstructorName,
		InstructorEmail: m.InstructorEmail,
		Status:          types.CourseStatus(m.Status),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

type cartEntryModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CourseID  string    `gorm:"column:course_id"`
	Email     string    `gorm:"column:email"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (cartEntryModel) TableName() string {
	return "cart_entries"
}

func (m cartEntryModel) toType() types.CartEntry {
	return types.CartEntry{ID: m.ID, CourseID: m.CourseID, Email: m.Email, CreatedAt: m.CreatedAt.UTC()}
}

type paymentModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Email         string    `gorm:"column:email"`
	CourseID      string    `gorm:"column:course_id"`
	Amount        float64   `gorm:"column:amount"`
	TransactionID string    `gorm:"column:transaction_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (paymentModel) TableName() string {
	return "payments"
}

func (m paymentModel) toType() types.PaymentRecord {
	return types.PaymentRecord{
		ID:            m.ID,
		Email:         m.Email,
		CourseID:      m.CourseID,
		Amount:        m.Amount,
		TransactionID: m.TransactionID,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func toUsers(rows []userModel) []types.User {
	out := make([]types.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toType())
	}
	return out
}

func toCourses(rows []courseModel) []types.Course {
	out := make([]types.Course, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toType())
	}
	return out
}
