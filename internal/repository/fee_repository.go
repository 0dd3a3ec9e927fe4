package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const feeColumns = `id, student_id, month, year, amount, paid, paid_date, created_at`

// FeeRepository persists the fee ledger.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository creates a new instance of FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Insert adds a ledger row. A second row for the same student and period yields ErrDuplicate.
func (r *FeeRepository) Insert(ctx context.Context, record *models.FeeRecord) error {
	record.ID = newID(record.ID)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fee_records (id, student_id, month, year, amount, paid, paid_date, created_at) VALUES (:id, :student_id, :month, :year, :amount, :paid, :paid_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == constraintFeePeriod {
			return fmt.Errorf("insert fee record: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert fee record: %w", err)
	}
	return nil
}

// FindByPeriod returns the ledger row for a student and period.
func (r *FeeRepository) FindByPeriod(ctx context.Context, studentID string, period models.Period) (*models.FeeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM fee_records WHERE student_id = $1 AND month = $2 AND year = $3`, feeColumns)
	var record models.FeeRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, period.Month, period.Year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find fee record: %w", err)
	}
	return &record, nil
}

// MarkPaid flips an unpaid row to paid. It reports false when the row was
// already paid (or gone) by the time the update ran.
func (r *FeeRepository) MarkPaid(ctx context.Context, id string, amount float64, paidAt time.Time) (bool, error) {
	const query = `UPDATE fee_records SET paid = TRUE, paid_date = $3, amount = $2 WHERE id = $1 AND paid = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, amount, paidAt)
	if err != nil {
		return false, fmt.Errorf("mark fee paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark fee paid: %w", err)
	}
	return n > 0, nil
}

// ListByStudent returns the ledger of a student, year descending then month ascending.
func (r *FeeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM fee_records WHERE student_id = $1 ORDER BY year DESC, month ASC`, feeColumns)
	records := make([]models.FeeRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list fee records: %w", err)
	}
	return records, nil
}

// Report lists every active student with their standing for the period.
func (r *FeeRepository) Report(ctx context.Context, period models.Period) ([]models.FeeReportRow, error) {
	const query = `SELECT s.id AS student_id, s.full_name, s.class_level, s.monthly_fees,
COALESCE(f.paid, FALSE) AS paid, f.amount, f.paid_date
FROM students s
LEFT JOIN fee_records f ON f.student_id = s.id AND f.month = $1 AND f.year = $2
WHERE s.is_active
ORDER BY s.class_level, s.full_name`
	rows := make([]models.FeeReportRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, period.Month, period.Year); err != nil {
		return nil, fmt.Errorf("fee report: %w", err)
	}
	return rows, nil
}
