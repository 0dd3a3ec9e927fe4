package models

import "time"

// Student is the enrollment record of a student. It is never hard deleted.
// IsActive is true exactly when LeftDate is nil.
type Student struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	FullName       string     `db:"full_name" json:"full_name"`
	DateOfBirth    time.Time  `db:"date_of_birth" json:"date_of_birth"`
	GuardianNumber string     `db:"guardian_number" json:"guardian_number"`
	PhoneNumber    *string    `db:"phone_number" json:"phone_number,omitempty"`
	SchoolName     string     `db:"school_name" json:"school_name"`
	ClassLevel     string     `db:"class_level" json:"class_level"`
	Year           int        `db:"year" json:"year"`
	MonthlyFees    float64    `db:"monthly_fees" json:"monthly_fees"`
	JoinedDate     time.Time  `db:"joined_date" json:"joined_date"`
	LeftDate       *time.Time `db:"left_date" json:"left_date,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Deactivate marks the student as having left at the given time.
func (s *Student) Deactivate(at time.Time) {
	left := at
	s.IsActive = false
	s.LeftDate = &left
}

// Reactivate clears the leave date.
func (s *Student) Reactivate() {
	s.IsActive = true
	s.LeftDate = nil
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

// UpdateStudentRequest carries admin edits. Nil fields are left unchanged.
type UpdateStudentRequest struct {
	FullName       *string  `json:"full_name" validate:"omitempty,min=2,max=100"`
	DateOfBirth    *string  `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GuardianNumber *string  `json:"guardian_number" validate:"omitempty,min=10,max=15"`
	PhoneNumber    *string  `json:"phone_number" validate:"omitempty,max=20"`
	SchoolName     *string  `json:"school_name" validate:"omitempty,max=200"`
	ClassLevel     *string  `json:"class_level" validate:"omitempty,max=50"`
	Year           *int     `json:"year" validate:"omitempty,min=1000,max=9999"`
	MonthlyFees    *float64 `json:"monthly_fees" validate:"omitempty,min=0"`
	JoinedDate     *string  `json:"joined_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive       *bool    `json:"is_active"`
}

// StudentStats is the admin dashboard summary.
type StudentStats struct {
	TotalStudents  int     `db:"total_students" json:"total_students"`
	ActiveStudents int     `db:"active_students" json:"active_students"`
	MonthlyRevenue float64 `db:"monthly_revenue" json:"monthly_revenue"`
}
