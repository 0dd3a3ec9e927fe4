package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const studentColumns = `id, user_id, full_name, date_of_birth, guardian_number, phone_number, school_name, class_level, year, monthly_fees, joined_date, left_date, is_active, created_at, updated_at`

// StudentRepository handles persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students ordered by join date, newest first, with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(school_name) LIKE $%d OR guardian_number LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM students%s ORDER BY joined_date DESC LIMIT %d OFFSET %d", studentColumns, where, pageSize, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID retrieves a student by primary key.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "id", id)
}

// FindByUserID retrieves the student owned by an identity.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return r.findOne(ctx, "user_id", userID)
}

func (r *StudentRepository) findOne(ctx context.Context, column, value string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE %s = $1", studentColumns, column)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get student by %s: %w", column, err)
	}
	return &student, nil
}

func insertStudent(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.ID = newID(student.ID)
	now := time.Now().UTC()
	if student.JoinedDate.IsZero() {
		student.JoinedDate = now
	}
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, user_id, full_name, date_of_birth, guardian_number, phone_number, school_name, class_level, year, monthly_fees, joined_date, left_date, is_active, created_at, updated_at)
VALUES (:id, :user_id, :full_name, :date_of_birth, :guardian_number, :phone_number, :school_name, :class_level, :year, :monthly_fees, :joined_date, :left_date, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == constraintStudentOwner {
			return fmt.Errorf("create student: %w", ErrDuplicate)
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update saves mutable fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, date_of_birth = :date_of_birth, guardian_number = :guardian_number,
phone_number = :phone_number, school_name = :school_name, class_level = :class_level, year = :year, monthly_fees = :monthly_fees,
joined_date = :joined_date, left_date = :left_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkLeft deactivates the student owned by userID. A missing row is not an error;
// the returned count tells the caller whether anything changed.
func (r *StudentRepository) MarkLeft(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `UPDATE students SET is_active = FALSE, left_date = COALESCE(left_date, $2), updated_at = $2 WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark student left: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark student left: %w", err)
	}
	return n, nil
}

// Stats aggregates totals for the admin dashboard. Revenue sums active students' monthly fees.
func (r *StudentRepository) Stats(ctx context.Context) (*models.StudentStats, error) {
	const query = `SELECT COUNT(*) AS total_students,
COUNT(*) FILTER (WHERE is_active) AS active_students,
COALESCE(SUM(monthly_fees) FILTER (WHERE is_active), 0) AS monthly_revenue
FROM students`
	var stats models.StudentStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("student stats: %w", err)
	}
	return &stats, nil
}
