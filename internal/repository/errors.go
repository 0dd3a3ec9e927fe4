package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate reports a unique constraint violation.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = pq.ErrorCode("23505")

// Constraint names the schema declares.
const (
	constraintFeePeriod    = "fee_records_student_id_month_year_key"
	constraintUserRole     = "user_roles_user_id_role_key"
	constraintUsername     = "identities_username_key"
	constraintPhone        = "identities_phone_key"
	constraintStudentOwner = "students_user_id_key"
)

// uniqueConstraint returns the violated constraint name when err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// IsDuplicate reports whether err wraps ErrDuplicate.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
