package models

import "time"

// FeeRecord is one billing period of one student. (StudentID, Month, Year) is unique.
type FeeRecord struct {
	ID        string     `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id"`
	Month     int        `db:"month" json:"month"`
	Year      int        `db:"year" json:"year"`
	Amount    float64    `db:"amount" json:"amount"`
	Paid      bool       `db:"paid" json:"paid"`
	PaidDate  *time.Time `db:"paid_date" json:"paid_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Period identifies a billing month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PreviousPeriod returns the most recently completed month relative to now,
// evaluated in now's location.
func PreviousPeriod(now time.Time) Period {
	if now.Month() == time.January {
		return Period{Month: 12, Year: now.Year() - 1}
	}
	return Period{Month: int(now.Month()) - 1, Year: now.Year()}
}

// Valid reports whether the period has a month in 1..12 and a positive year.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// MarkFeePaidRequest is the admin mark-paid payload. An omitted amount
// defaults to the student's monthly fee; an explicit 0 records a waived month.
type MarkFeePaidRequest struct {
	Month  int      `json:"month" validate:"required,min=1,max=12"`
	Year   int      `json:"year" validate:"required,min=1000,max=9999"`
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,min=0"`
}

// FeeReportRow is one student's standing for a period.
type FeeReportRow struct {
	StudentID   string     `db:"student_id" json:"student_id"`
	FullName    string     `db:"full_name" json:"full_name"`
	ClassLevel  string     `db:"class_level" json:"class_level"`
	MonthlyFees float64    `db:"monthly_fees" json:"monthly_fees"`
	Paid        bool       `db:"paid" json:"paid"`
	Amount      *float64   `db:"amount" json:"amount,omitempty"`
	PaidDate    *time.Time `db:"paid_date" json:"paid_date,omitempty"`
}
